package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/metrics"
	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/solver"
	"github.com/uhyunpark/cowsolver/pkg/strategy"
	"github.com/uhyunpark/cowsolver/pkg/util"
)

var (
	tokX = model.NewToken("0x0000000000000000000000000000000000000001", "X", "Token X", 18, model.EthereumMainnet)
	tokY = model.NewToken("0x0000000000000000000000000000000000000002", "Y", "Token Y", 18, model.EthereumMainnet)

	now = time.Unix(1_000, 0).UTC()
)

type recordingPublisher struct {
	mu     sync.Mutex
	orders []uint64
}

func (p *recordingPublisher) PublishOrder(_ context.Context, o model.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.ID)
	return nil
}

func order(id uint64, sell model.Token, sellAmt int64, buy model.Token, buyAmt int64) model.Order {
	return model.Order{
		ID:         id,
		Owner:      common.BigToAddress(new(big.Int).SetUint64(1000 + id)),
		SellToken:  sell,
		BuyToken:   buy,
		SellAmount: decimal.NewFromInt(sellAmt),
		BuyAmount:  decimal.NewFromInt(buyAmt),
		Expiration: time.Unix(10_000, 0).UTC(),
	}
}

func newTestServer(t *testing.T, pub OrderPublisher) (*Server, *solver.Pool) {
	clock := util.NewManualClock(now)
	slv := solver.New(solver.Config{Chain: model.EthereumMainnet}, clock, nil,
		strategy.NewBaseline(strategy.Deps{Chain: model.EthereumMainnet}))
	pool := solver.NewPool()
	s := NewServer(Config{MaxBatchOrders: 10}, pool, slv, pub, clock, nil)
	t.Cleanup(s.hub.Stop)
	return s, pool
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitOrder(t *testing.T) {
	pub := &recordingPublisher{}
	s, pool := newTestServer(t, pub)

	rec := do(t, s.Handler(), "POST", "/api/v1/orders", order(1, tokX, 10, tokY, 20))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SubmitOrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(1), resp.OrderID)
	assert.Equal(t, 1, resp.Pending)
	assert.Equal(t, 1, pool.Len())
	assert.Equal(t, []uint64{1}, pub.orders)
}

func TestSubmitOrderRejectsInvalid(t *testing.T) {
	s, pool := newTestServer(t, nil)
	h := s.Handler()

	zero := order(1, tokX, 0, tokY, 20)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/orders", zero).Code)

	polygon := tokY
	polygon.Chain = model.Polygon
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/v1/orders", order(2, tokX, 1, polygon, 1)).Code)

	req := httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, pool.Len())
}

func TestGetAuction(t *testing.T) {
	s, pool := newTestServer(t, nil)
	require.NoError(t, pool.Push(order(4, tokX, 1, tokY, 1), now))

	rec := do(t, s.Handler(), "GET", "/api/v1/auction", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info AuctionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "ethereum", info.Chain)
	assert.Equal(t, 1, info.Pending)
	require.Len(t, info.Orders, 1)
	assert.Equal(t, uint64(4), info.Orders[0].ID)
}

func TestSolveBatch(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := BatchRequest{Orders: []model.Order{order(1, tokX, 10, tokY, 20), order(2, tokY, 25, tokX, 10)}}

	rec := do(t, s.Handler(), "POST", "/api/v1/batches", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res BatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "settled", res.Status)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, []uint64{1, 2}, res.Settlement.OrderIDs())
	assert.True(t, res.Settlement.ClearingPrice.IsPositive())
}

func TestSolveBatchUnsettled(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := BatchRequest{Orders: []model.Order{order(1, tokX, 10, tokY, 20), order(2, tokY, 5, tokX, 10)}}

	rec := do(t, s.Handler(), "POST", "/api/v1/batches", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res BatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "unsettled", res.Status)
	assert.Nil(t, res.Settlement)
	assert.Len(t, res.Unsettled, 2)
}

func TestSolveBatchTooLarge(t *testing.T) {
	s, _ := newTestServer(t, nil)
	orders := make([]model.Order, 11)
	for i := range orders {
		orders[i] = order(uint64(i+1), tokX, 1, tokY, 1)
	}
	rec := do(t, s.Handler(), "POST", "/api/v1/batches", BatchRequest{Orders: orders})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetChainsAndHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), "GET", "/api/v1/chains", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chains []ChainInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&chains))
	require.Len(t, chains, len(model.SupportedChains()))
	solverChains := 0
	for _, c := range chains {
		if c.Solver {
			solverChains++
			assert.Equal(t, uint64(model.EthereumMainnet), c.ID)
		}
	}
	assert.Equal(t, 1, solverChains)

	rec = do(t, s.Handler(), "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestWebSocketStreamsSettlements(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelSettlements}}))
	require.Eventually(t, func() bool { return s.Hub().Subscribers(ChannelSettlements) == 1 }, 2*time.Second, 10*time.Millisecond)

	req := BatchRequest{Orders: []model.Order{order(1, tokX, 10, tokY, 20), order(2, tokY, 25, tokX, 10)}}
	require.Equal(t, http.StatusOK, do(t, s.Handler(), "POST", "/api/v1/batches", req).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var update SettlementUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "settlement", update.Type)
	assert.Equal(t, "local", update.Source)
	require.NotNil(t, update.Settlement)
	assert.Len(t, update.Settlement.Transfers, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	clock := util.NewManualClock(now)
	reg := prometheus.NewRegistry()
	slv, err := metrics.Instrument(solver.New(solver.Config{Chain: model.EthereumMainnet}, clock, nil,
		strategy.NewBaseline(strategy.Deps{Chain: model.EthereumMainnet})), reg, "cowsolver")
	require.NoError(t, err)

	s := NewServer(Config{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}, solver.NewPool(), slv, nil, clock, nil)
	t.Cleanup(s.hub.Stop)

	req := BatchRequest{Orders: []model.Order{order(1, tokX, 10, tokY, 20), order(2, tokY, 25, tokX, 10)}}
	require.Equal(t, http.StatusOK, do(t, s.Handler(), "POST", "/api/v1/batches", req).Code)

	rec := do(t, s.Handler(), "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cowsolver_solver_batches_total{outcome="settled"} 1`)
}
