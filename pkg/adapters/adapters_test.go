package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

var (
	eth = model.NewToken("0x0000000000000000000000000000000000000e7e", "ETH", "Ether", 18, model.EthereumMainnet)
	dai = model.NewToken("0x0000000000000000000000000000000000000da1", "DAI", "Dai", 18, model.EthereumMainnet)
	usd = model.NewToken("0x0000000000000000000000000000000000000555", "USDC", "USD Coin", 6, model.EthereumMainnet)
)

func TestDummyAdaptersReturnZero(t *testing.T) {
	ctx := context.Background()
	q, err := DummyDex{}.GetQuote(ctx, eth, dai, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, q.IsZero())

	got, err := DummyDex{}.ExecuteSwap(ctx, eth, dai, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	gas, err := DummyChainClient{}.GasPrice(ctx, model.EthereumMainnet)
	require.NoError(t, err)
	assert.True(t, gas.IsZero())
	assert.NoError(t, DummyChainClient{}.SubmitTransaction(ctx, model.EthereumMainnet, make([]byte, 32)))
}

func TestConstantProductPool(t *testing.T) {
	ctx := context.Background()
	pool := NewConstantProductPool("uni", common.HexToAddress("0xfeed"), eth, decimal.NewFromInt(1000), dai, decimal.NewFromInt(1000), 0)

	q, err := pool.GetQuote(ctx, eth, dai, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "90.90909090909090909", q.String())

	// unknown pair quotes zero rather than failing
	q, err = pool.GetQuote(ctx, eth, usd, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, q.IsZero())

	out, err := pool.ExecuteSwap(ctx, eth, dai, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "90.90909090909090909", out.String())
	r0, r1 := pool.Reserves()
	assert.True(t, r0.Equal(decimal.NewFromInt(1100)))
	assert.True(t, r1.Equal(decimal.NewFromInt(1000).Sub(out)))

	// price moved against the next seller of ETH
	next, err := pool.GetQuote(ctx, eth, dai, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, next.LessThan(out))
}

func TestConstantProductPoolFee(t *testing.T) {
	ctx := context.Background()
	noFee := NewConstantProductPool("a", common.Address{}, eth, decimal.NewFromInt(500), dai, decimal.NewFromInt(800), 0)
	withFee := NewConstantProductPool("b", common.Address{}, eth, decimal.NewFromInt(500), dai, decimal.NewFromInt(800), 30)

	a, _ := noFee.GetQuote(ctx, dai, eth, decimal.NewFromInt(10))
	b, _ := withFee.GetQuote(ctx, dai, eth, decimal.NewFromInt(10))
	assert.True(t, b.IsPositive())
	assert.True(t, b.LessThan(a))
}

func TestConstantProductPoolHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool := NewConstantProductPool("uni", common.Address{}, eth, decimal.NewFromInt(1), dai, decimal.NewFromInt(1), 0)
	_, err := pool.GetQuote(ctx, eth, dai, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.Canceled)
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func fakeNode(t *testing.T) (*httptest.Server, *[]string) {
	var (
		mu  sync.Mutex
		raw []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_gasPrice":
			resp["result"] = "0x3b9aca00"
		case "eth_sendRawTransaction":
			var payload string
			require.NoError(t, json.Unmarshal(req.Params[0], &payload))
			mu.Lock()
			raw = append(raw, payload)
			mu.Unlock()
			resp["result"] = common.Hash{1}.Hex()
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &raw
}

func TestEthRPCClient(t *testing.T) {
	srv, raw := fakeNode(t)
	ctx := context.Background()

	c, err := DialEthRPC(ctx, map[model.ChainID]string{model.GnosisChain: srv.URL})
	require.NoError(t, err)
	defer c.Close()

	gas, err := c.GasPrice(ctx, model.GnosisChain)
	require.NoError(t, err)
	assert.True(t, gas.Equal(decimal.NewFromInt(1_000_000_000)))

	require.NoError(t, c.SubmitTransaction(ctx, model.GnosisChain, []byte{0xde, 0xad}))
	assert.Equal(t, []string{"0xdead"}, *raw)

	_, err = c.GasPrice(ctx, model.Polygon)
	assert.True(t, errors.Is(err, model.ErrAdapter))
}

func TestPoolAddressIsStable(t *testing.T) {
	assert.Equal(t, PoolAddress("weth-usdc"), PoolAddress("weth-usdc"))
	assert.NotEqual(t, PoolAddress("weth-usdc"), PoolAddress("weth-dai"))
	assert.NotEqual(t, common.Address{}, PoolAddress(""))
}
