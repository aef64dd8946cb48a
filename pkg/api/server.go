// Package api exposes the auction pool and the solver over HTTP and streams
// settlements over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/solver"
	"github.com/uhyunpark/cowsolver/pkg/util"
)

// BatchSolver solves batches on one chain.
type BatchSolver interface {
	Chain() model.ChainID
	ProcessBatch(ctx context.Context, batch model.BatchAuction) (*model.Settlement, error)
}

// OrderPublisher shares accepted orders with other nodes.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, o model.Order) error
}

type Config struct {
	AllowedOrigins []string
	// MaxBatchOrders caps POST /batches; zero means unlimited.
	MaxBatchOrders int
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg       Config
	pool      *solver.Pool
	solver    BatchSolver
	publisher OrderPublisher
	clock     util.Clock
	log       *zap.SugaredLogger
	router    *mux.Router
	hub       *Hub

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

func NewServer(cfg Config, pool *solver.Pool, slv BatchSolver, publisher OrderPublisher, clock util.Clock, log *zap.SugaredLogger) *Server {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		cfg:       cfg,
		pool:      pool,
		solver:    slv,
		publisher: publisher,
		clock:     clock,
		log:       log,
		router:    mux.NewRouter(),
		hub:       NewHub(log),
	}
	s.setupRoutes()
	go s.hub.Run()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/auction", s.handleGetAuction).Methods("GET")
	api.HandleFunc("/batches", s.handleSolveBatch).Methods("POST")
	api.HandleFunc("/chains", s.handleGetChains).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.http = srv
	s.mu.Unlock()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	if o.SellToken.Chain != s.solver.Chain() || o.BuyToken.Chain != s.solver.Chain() {
		respondError(w, http.StatusBadRequest, "invalid order", "tokens must be on chain "+s.solver.Chain().String())
		return
	}
	if err := s.pool.Push(o, s.clock.Now()); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOrder(r.Context(), o); err != nil {
			s.log.Warnw("order_gossip_failed", "order", o.ID, "err", err)
		}
	}

	s.log.Infow("order_accepted", "order", o.ID, "owner", o.Owner, "sell", o.SellToken.Symbol, "buy", o.BuyToken.Symbol)
	respondJSON(w, http.StatusAccepted, SubmitOrderResponse{Status: "accepted", OrderID: o.ID, Pending: s.pool.Len()})
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	orders := s.pool.Snapshot()
	respondJSON(w, http.StatusOK, AuctionInfo{Chain: s.solver.Chain().String(), Pending: len(orders), Orders: orders})
}

func (s *Server) handleSolveBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch", err.Error())
		return
	}
	if s.cfg.MaxBatchOrders > 0 && len(req.Orders) > s.cfg.MaxBatchOrders {
		respondError(w, http.StatusRequestEntityTooLarge, "batch too large", "")
		return
	}
	ts := s.clock.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	st, err := s.solver.ProcessBatch(r.Context(), model.NewBatchAuction(req.Orders, ts))
	var unsettled *model.UnsettledBatchError
	switch {
	case errors.As(err, &unsettled):
		s.BroadcastUnsettled(unsettled)
		respondJSON(w, http.StatusUnprocessableEntity, BatchResult{Status: "unsettled", Reason: unsettled.Reason, Unsettled: unsettled.Unsettled})
	case err != nil:
		s.log.Errorw("batch_failed", "orders", len(req.Orders), "err", err)
		respondError(w, http.StatusInternalServerError, "solve failed", err.Error())
	default:
		s.BroadcastSettlement(st, "local")
		respondJSON(w, http.StatusOK, BatchResult{Status: "settled", Settlement: st})
	}
}

func (s *Server) handleGetChains(w http.ResponseWriter, r *http.Request) {
	chains := model.SupportedChains()
	out := make([]ChainInfo, 0, len(chains))
	for _, c := range chains {
		out = append(out, ChainInfo{ID: uint64(c), Name: c.String(), Solver: c == s.solver.Chain()})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// BroadcastSettlement pushes a settlement to clients on the settlements channel
func (s *Server) BroadcastSettlement(st *model.Settlement, source string) {
	s.hub.BroadcastToChannel(ChannelSettlements, SettlementUpdate{
		Type:       "settlement",
		Settlement: st,
		Source:     source,
		Timestamp:  s.clock.Now().UnixMilli(),
	})
}

// BroadcastUnsettled pushes an unsettled batch outcome to the unsettled channel
func (s *Server) BroadcastUnsettled(e *model.UnsettledBatchError) {
	s.hub.BroadcastToChannel(ChannelUnsettled, UnsettledUpdate{
		Type:      "unsettled",
		Reason:    e.Reason,
		Unsettled: e.Unsettled,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

func (s *Server) Hub() *Hub { return s.hub }

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{Error: error, Message: message})
}
