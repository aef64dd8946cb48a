package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/params"
	"github.com/uhyunpark/cowsolver/pkg/adapters"
	"github.com/uhyunpark/cowsolver/pkg/api"
	"github.com/uhyunpark/cowsolver/pkg/bridge"
	"github.com/uhyunpark/cowsolver/pkg/crypto"
	"github.com/uhyunpark/cowsolver/pkg/matching"
	"github.com/uhyunpark/cowsolver/pkg/metrics"
	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/p2p"
	"github.com/uhyunpark/cowsolver/pkg/pricing"
	"github.com/uhyunpark/cowsolver/pkg/routing"
	"github.com/uhyunpark/cowsolver/pkg/settlement"
	"github.com/uhyunpark/cowsolver/pkg/solver"
	"github.com/uhyunpark/cowsolver/pkg/storage"
	"github.com/uhyunpark/cowsolver/pkg/strategy"
	"github.com/uhyunpark/cowsolver/pkg/util"
)

const metricsNamespace = "cowsolver"

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, util.RealClock{}, sugar); err != nil {
		sugar.Fatalw("solver_failed", "err", err)
	}
}

func serve(ctx context.Context, cfg params.Config, clock util.Clock, sugar *zap.SugaredLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// ---- Solver ----
	router := routing.NewRouter(routing.Config{QuoteTimeout: cfg.Routing.QuoteTimeout}, sugar, buildSources(cfg)...)
	strategies, err := buildStrategies(cfg, router, sugar)
	if err != nil {
		return err
	}
	slv, err := metrics.Instrument(solver.New(solver.Config{Chain: cfg.Solver.Chain}, clock, sugar, strategies...), reg, metricsNamespace)
	if err != nil {
		return err
	}
	pool := solver.NewPool()
	if err := metrics.RegisterPool(reg, metricsNamespace, pool.Len); err != nil {
		return err
	}

	// ---- Bridge (optional) ----
	var br bridge.Bridge
	if cfg.Bridge.Enabled {
		b, closeBridge, err := buildBridge(ctx, cfg, clock, sugar)
		if err != nil {
			return err
		}
		defer closeBridge()
		br = b
	}

	// ---- Gossip (optional) ----
	var gossip *p2p.Gossip
	var publisher api.OrderPublisher
	if cfg.P2P.Enabled {
		gossip, err = p2p.NewGossip(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			SkipSelf:   true,
			Logger:     sugar,
		})
		if err != nil {
			return err
		}
		defer gossip.Close()
		publisher = gossip
	}

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		AllowedOrigins: cfg.API.AllowedOrigins,
		MaxBatchOrders: cfg.Solver.MaxBatchOrders,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, pool, slv, publisher, clock, sugar)

	if gossip != nil {
		gossip.SetHandlers(p2p.Handlers{
			OnOrder: func(_ context.Context, from peer.ID, o model.Order) {
				if err := pool.Push(o, clock.Now()); err != nil {
					sugar.Debugw("gossip_order_rejected", "from", from, "order", o.ID, "err", err)
				}
			},
			OnSettlement: func(_ context.Context, from peer.ID, s *model.Settlement) {
				apiServer.BroadcastSettlement(s, from.String())
			},
		})
	}

	sugar.Infow("solver_starting",
		"chain", cfg.Solver.Chain,
		"strategies", cfg.Solver.Strategies,
		"batch_interval_ms", cfg.Solver.BatchInterval.Milliseconds(),
		"bridge", cfg.Bridge.Enabled,
		"p2p", cfg.P2P.Enabled)

	g := new(run.Group)
	{
		g.Add(func() error {
			return apiServer.Start(cfg.API.Addr)
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		})
	}
	{
		loopCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(cfg.Solver.BatchInterval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return nil
				case <-ticker.C:
					if pool.Len() == 0 {
						continue
					}
					batch := pool.Cut(clock.Now(), cfg.Solver.MaxBatchOrders)
					solveBatch(loopCtx, cfg, slv, batch, apiServer, gossip, br, sugar)
				}
			}
		}, func(error) {
			cancel()
		})
	}
	return g.Run()
}

func solveBatch(ctx context.Context, cfg params.Config, slv api.BatchSolver, batch model.BatchAuction,
	apiServer *api.Server, gossip *p2p.Gossip, br bridge.Bridge, sugar *zap.SugaredLogger) {
	st, err := slv.ProcessBatch(ctx, batch)
	var unsettled *model.UnsettledBatchError
	switch {
	case errors.As(err, &unsettled):
		apiServer.BroadcastUnsettled(unsettled)
		return
	case err != nil:
		sugar.Errorw("batch_failed", "orders", len(batch.Orders), "err", err)
		return
	}

	apiServer.BroadcastSettlement(st, "local")
	if gossip != nil {
		if err := gossip.PublishSettlement(ctx, st); err != nil {
			sugar.Warnw("settlement_gossip_failed", "settlement", st.ID, "err", err)
		}
	}
	if br != nil {
		if err := br.BridgeSettlement(ctx, st, cfg.Bridge.Target); err != nil {
			sugar.Errorw("bridge_failed", "settlement", st.ID, "target", cfg.Bridge.Target, "err", err)
		}
	}
}

// buildSources returns the liquidity sources for the router: the zero
// liquidity dex plus every configured devnet pool.
func buildSources(cfg params.Config) []adapters.LiquiditySource {
	sources := []adapters.LiquiditySource{adapters.DummyDex{}}
	for _, p := range cfg.Routing.Pools {
		t0 := model.Token{Address: p.Token0, Chain: cfg.Solver.Chain}
		t1 := model.Token{Address: p.Token1, Chain: cfg.Solver.Chain}
		addr := adapters.PoolAddress(p.Name)
		sources = append(sources, adapters.NewConstantProductPool(p.Name, addr, t0, p.Reserve0, t1, p.Reserve1, p.FeeBps))
	}
	return sources
}

func buildStrategies(cfg params.Config, router *routing.Router, sugar *zap.SugaredLogger) ([]strategy.Strategy, error) {
	deps := strategy.Deps{
		Chain:     cfg.Solver.Chain,
		Matcher:   matching.NewEngine(matching.Config{MaxRingLength: cfg.Solver.MaxRingLength}),
		Pricing:   pricing.NewVolumeWeighted(),
		Assembler: settlement.NewAssembler(),
		Logger:    sugar,
	}
	var out []strategy.Strategy
	for _, name := range cfg.Solver.Strategies {
		switch name {
		case "baseline":
			out = append(out, strategy.NewBaseline(deps))
		case "advanced":
			out = append(out, strategy.NewAdvanced(deps, router))
		default:
			return nil, errors.Errorf("unknown strategy %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no strategies configured")
	}
	return out, nil
}

func buildBridge(ctx context.Context, cfg params.Config, clock util.Clock, sugar *zap.SugaredLogger) (bridge.Bridge, func(), error) {
	var client adapters.ChainClient = adapters.DummyChainClient{}
	closers := []func(){}
	if len(cfg.RPC) > 0 {
		rpc, err := adapters.DialEthRPC(ctx, cfg.RPC)
		if err != nil {
			return nil, nil, err
		}
		client = rpc
		closers = append(closers, rpc.Close)
	}

	ledger, err := storage.NewPebbleLedger(cfg.Bridge.LedgerPath)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}
	closers = append(closers, func() { _ = ledger.Close() })

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var attestor *crypto.Attestor
	if len(cfg.Attestation.Seed) > 0 {
		attestor, err = crypto.NewAttestor(cfg.Attestation.Seed)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	b := bridge.NewChainBridge(bridge.Config{
		Targets:     cfg.Bridge.Targets,
		MaxGasPrice: cfg.Bridge.MaxGasPrice,
	}, client, ledger, attestor, clock, sugar)
	return b, closeAll, nil
}
