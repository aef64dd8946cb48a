package strategy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/adapters"
	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/routing"
)

var (
	tokX = model.NewToken("0x0000000000000000000000000000000000000001", "X", "Token X", 18, model.EthereumMainnet)
	tokY = model.NewToken("0x0000000000000000000000000000000000000002", "Y", "Token Y", 18, model.EthereumMainnet)
)

func mkOrder(id uint64, sell model.Token, sellAmt string, buy model.Token, buyAmt string) model.Order {
	return model.Order{
		ID:         id,
		Owner:      common.BigToAddress(new(big.Int).SetUint64(1000 + id)),
		SellToken:  sell,
		BuyToken:   buy,
		SellAmount: decimal.RequireFromString(sellAmt),
		BuyAmount:  decimal.RequireFromString(buyAmt),
		Expiration: time.Unix(10_000, 0),
	}
}

func batchOf(orders ...model.Order) model.BatchAuction {
	return model.NewBatchAuction(orders, time.Unix(1_000, 0))
}

func newPool() *adapters.ConstantProductPool {
	return adapters.NewConstantProductPool("pool", common.HexToAddress("0x9001"),
		tokX, decimal.NewFromInt(1_000), tokY, decimal.NewFromInt(1_000), 0)
}

func deps() Deps { return Deps{Chain: model.EthereumMainnet} }

func TestBaselineSettlesInternalMatch(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "20")
	b := mkOrder(2, tokY, "25", tokX, "10")

	s, err := NewBaseline(deps()).Solve(context.Background(), batchOf(a, b))
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, []uint64{1, 2}, s.OrderIDs())
	assert.Len(t, s.Transfers, 2)
	assert.True(t, s.ClearingPrice.IsPositive())
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))

	require.Len(t, s.Unsettled, 1)
	assert.Equal(t, uint64(2), s.Unsettled[0].Order.ID)
	assert.Equal(t, reasonNoMatch, s.Unsettled[0].Reason)
}

func TestAdvancedRoutesResidual(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "20")
	b := mkOrder(2, tokY, "25", tokX, "10")

	router := routing.NewRouter(routing.Config{}, nil, adapters.DummyDex{}, newPool())
	s, err := NewAdvanced(deps(), router).Solve(context.Background(), batchOf(a, b))
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Empty(t, s.Unsettled)
	require.Len(t, s.Transfers, 4)
	assert.Equal(t, model.TransferRouteIn, s.Transfers[2].Kind)
	assert.Equal(t, model.TransferRouteOut, s.Transfers[3].Kind)

	fills := s.Fills()
	assert.True(t, fills[2].Sold.Equal(decimal.NewFromInt(25)))
}

func TestAdvancedPricesSingleRoutedOrder(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "5")

	router := routing.NewRouter(routing.Config{}, nil, newPool())
	s, err := NewAdvanced(deps(), router).Solve(context.Background(), batchOf(a))
	require.NoError(t, err)
	require.NotNil(t, s)

	fill := s.Fills()[1]
	require.NotNil(t, fill)
	assert.True(t, s.ClearingPrice.IsPositive())
	assert.True(t, s.ClearingPrice.Equal(model.DivRound(fill.Received, fill.Sold)))
}

func TestNoCrossingWithoutLiquidityYieldsNoSettlement(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "20")
	c := mkOrder(2, tokY, "5", tokX, "10")
	batch := batchOf(a, c)

	router := routing.NewRouter(routing.Config{}, nil, adapters.DummyDex{})
	for _, s := range []Strategy{NewBaseline(deps()), NewAdvanced(deps(), router)} {
		got, err := s.Solve(context.Background(), batch)
		require.NoError(t, err, s.Name())
		assert.Nil(t, got, s.Name())
	}
}

func TestStrategiesAreDeterministic(t *testing.T) {
	orders := []model.Order{
		mkOrder(1, tokX, "10", tokY, "20"),
		mkOrder(2, tokY, "25", tokX, "10"),
		mkOrder(3, tokX, "3", tokY, "1"),
	}

	solve := func() *model.Settlement {
		router := routing.NewRouter(routing.Config{}, nil, newPool())
		s, err := NewAdvanced(deps(), router).Solve(context.Background(), batchOf(orders...))
		require.NoError(t, err)
		require.NotNil(t, s)
		return s
	}

	first, second := solve(), solve()
	assert.Equal(t, first.ID, second.ID)
	h1, err := first.Hash()
	require.NoError(t, err)
	h2, err := second.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestMergeFills(t *testing.T) {
	one := decimal.NewFromInt(1)
	merged := mergeFills(
		map[uint64]*model.Fill{7: {OrderID: 7, Sold: one, Received: one}},
		map[uint64]*model.Fill{7: {OrderID: 7, Sold: one, Received: one}, 8: {OrderID: 8, Sold: one, Received: one}},
	)
	require.Len(t, merged, 2)
	assert.True(t, merged[7].Sold.Equal(decimal.NewFromInt(2)))
	assert.True(t, merged[8].Received.Equal(one))
}
