// Package p2p gossips orders and settlements between solver nodes.
package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/settlement"
)

const (
	topicSettlements = "cow-settlements/1"
	topicOrders      = "cow-orders/1"
)

// Handlers receive decoded gossip. from is the publishing peer.
type Handlers struct {
	OnSettlement func(ctx context.Context, from peer.ID, s *model.Settlement)
	OnOrder      func(ctx context.Context, from peer.ID, o model.Order)
}

type Config struct {
	ListenAddr string
	Bootstrap  []string
	// SkipSelf drops messages this node published itself.
	SkipSelf bool
	Logger   *zap.SugaredLogger
}

type Gossip struct {
	h    host.Host
	ps   *pubsub.PubSub
	log  *zap.SugaredLogger
	skip bool

	tSettlements, tOrders     *pubsub.Topic
	subSettlements, subOrders *pubsub.Subscription

	muH      sync.RWMutex
	handlers Handlers
}

func NewGossip(ctx context.Context, cfg Config) (*Gossip, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "listen addr %q", cfg.ListenAddr)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "libp2p host")
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, errors.Wrap(err, "gossipsub")
	}

	g := &Gossip{h: h, ps: ps, log: log, skip: cfg.SkipSelf}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := g.joinTopics(); err != nil {
		_ = h.Close()
		return nil, err
	}

	go g.handleSettlements(ctx)
	go g.handleOrders(ctx)

	log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (g *Gossip) joinTopics() error {
	var err error
	if g.tSettlements, err = g.ps.Join(topicSettlements); err != nil {
		return errors.Wrap(err, "join settlements")
	}
	if g.tOrders, err = g.ps.Join(topicOrders); err != nil {
		return errors.Wrap(err, "join orders")
	}
	if g.subSettlements, err = g.tSettlements.Subscribe(); err != nil {
		return errors.Wrap(err, "subscribe settlements")
	}
	if g.subOrders, err = g.tOrders.Subscribe(); err != nil {
		return errors.Wrap(err, "subscribe orders")
	}
	return nil
}

func (g *Gossip) SetHandlers(h Handlers) { g.muH.Lock(); g.handlers = h; g.muH.Unlock() }

func (g *Gossip) Host() host.Host { return g.h }

// Addrs returns the full p2p multiaddrs other nodes can bootstrap from.
func (g *Gossip) Addrs() []string {
	info := peer.AddrInfo{ID: g.h.ID(), Addrs: g.h.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func (g *Gossip) PublishSettlement(ctx context.Context, s *model.Settlement) error {
	data, err := encode(SettlementWire{Version: wireVersion, Solver: g.h.ID().String(), Settlement: s})
	if err != nil {
		return err
	}
	return g.tSettlements.Publish(ctx, data)
}

func (g *Gossip) PublishOrder(ctx context.Context, o model.Order) error {
	data, err := encode(OrderWire{Version: wireVersion, Order: o})
	if err != nil {
		return err
	}
	return g.tOrders.Publish(ctx, data)
}

func (g *Gossip) Close() error {
	g.subSettlements.Cancel()
	g.subOrders.Cancel()
	return g.h.Close()
}

// inbound

func (g *Gossip) handleSettlements(ctx context.Context) {
	for {
		msg, err := g.subSettlements.Next(ctx)
		if err != nil {
			return
		}
		if g.skip && msg.ReceivedFrom == g.h.ID() {
			continue
		}
		w, err := decodeSettlement(msg.Data)
		if err != nil {
			g.log.Debugw("gossip_settlement_dropped", "from", msg.ReceivedFrom, "err", err)
			continue
		}
		if err := verifySettlement(w.Settlement); err != nil {
			g.log.Warnw("gossip_settlement_rejected", "from", msg.ReceivedFrom, "settlement", w.Settlement.ID, "err", err)
			continue
		}

		g.muH.RLock()
		h := g.handlers
		g.muH.RUnlock()
		if h.OnSettlement != nil {
			h.OnSettlement(ctx, msg.ReceivedFrom, w.Settlement)
		}
	}
}

func (g *Gossip) handleOrders(ctx context.Context) {
	for {
		msg, err := g.subOrders.Next(ctx)
		if err != nil {
			return
		}
		if g.skip && msg.ReceivedFrom == g.h.ID() {
			continue
		}
		w, err := decodeOrder(msg.Data)
		if err != nil {
			g.log.Debugw("gossip_order_dropped", "from", msg.ReceivedFrom, "err", err)
			continue
		}

		g.muH.RLock()
		h := g.handlers
		g.muH.RUnlock()
		if h.OnOrder != nil {
			h.OnOrder(ctx, msg.ReceivedFrom, w.Order)
		}
	}
}

// verifySettlement rejects settlements that break an invariant or whose id
// does not match their content.
func verifySettlement(s *model.Settlement) error {
	if err := settlement.Validate(s); err != nil {
		return err
	}
	claimed := s.ID
	if err := s.Seal(); err != nil {
		return err
	}
	if s.ID != claimed {
		return errors.Errorf("settlement id %s does not match content", claimed)
	}
	return nil
}
