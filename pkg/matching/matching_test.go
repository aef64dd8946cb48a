package matching

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

var (
	tokX = model.NewToken("0x0000000000000000000000000000000000000001", "X", "Token X", 18, model.EthereumMainnet)
	tokY = model.NewToken("0x0000000000000000000000000000000000000002", "Y", "Token Y", 18, model.EthereumMainnet)
	tokZ = model.NewToken("0x0000000000000000000000000000000000000003", "Z", "Token Z", 18, model.EthereumMainnet)
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

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPairMatchPartialFill(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "20")
	b := mkOrder(2, tokY, "25", tokX, "10")

	res := NewEngine(DefaultConfig()).Match([]model.Order{b, a})

	require.Len(t, res.Transfers, 2)
	assert.Equal(t, a.Owner, res.Transfers[0].From)
	assert.Equal(t, b.Owner, res.Transfers[0].To)
	assert.True(t, res.Transfers[0].Amount.Equal(d("10")))
	assert.True(t, res.Transfers[1].Amount.Equal(d("20")))
	assert.True(t, res.Transfers[1].Token.Equal(tokY))

	require.Len(t, res.Residuals, 1)
	r := res.Residuals[0]
	assert.Equal(t, uint64(2), r.Order.ID)
	assert.True(t, r.SellAmount.Equal(d("5")))
	assert.True(t, r.MinBuyAmount.Equal(d("2")))

	assert.True(t, res.Fills[1].Sold.Equal(d("10")))
	assert.True(t, res.Fills[1].Received.Equal(d("20")))
	assert.True(t, res.Fills[2].Sold.Equal(d("20")))
	assert.True(t, res.Fills[2].Received.Equal(d("10")))
}

func TestNonCrossingPairStaysUnmatched(t *testing.T) {
	a := mkOrder(1, tokX, "10", tokY, "20")
	b := mkOrder(2, tokY, "10", tokX, "10")

	res := NewEngine(DefaultConfig()).Match([]model.Order{a, b})
	assert.Empty(t, res.Transfers)
	assert.Empty(t, res.Fills)
	require.Len(t, res.Residuals, 2)
	assert.True(t, res.Residuals[0].SellAmount.Equal(d("10")))
}

func TestSameDirectionOrdersNeverMatch(t *testing.T) {
	res := NewEngine(DefaultConfig()).Match([]model.Order{
		mkOrder(1, tokX, "10", tokY, "1"),
		mkOrder(2, tokX, "10", tokY, "1"),
	})
	assert.Empty(t, res.Transfers)
	assert.Len(t, res.Residuals, 2)
}

func TestRingMatching(t *testing.T) {
	orders := []model.Order{
		mkOrder(1, tokX, "10", tokY, "10"),
		mkOrder(2, tokY, "10", tokZ, "10"),
		mkOrder(3, tokZ, "10", tokX, "9"),
	}

	pairsOnly := NewEngine(Config{MaxRingLength: 2}).Match(orders)
	assert.Empty(t, pairsOnly.Transfers)

	res := NewEngine(Config{MaxRingLength: 3}).Match(orders)
	require.Len(t, res.Transfers, 3)
	assert.Empty(t, res.Residuals)
	for _, tr := range res.Transfers {
		assert.True(t, tr.Amount.Equal(d("10")))
	}
	// X sold by order 1 goes to order 3, which buys X
	assert.Equal(t, uint64(1), res.Transfers[0].FromOrder)
	assert.Equal(t, uint64(3), res.Transfers[0].ToOrder)
}

func TestNonCrossingRing(t *testing.T) {
	res := NewEngine(Config{MaxRingLength: 3}).Match([]model.Order{
		mkOrder(1, tokX, "10", tokY, "11"),
		mkOrder(2, tokY, "10", tokZ, "10"),
		mkOrder(3, tokZ, "10", tokX, "10"),
	})
	assert.Empty(t, res.Transfers)
}

func TestOneOrderSplitAcrossCounterparties(t *testing.T) {
	res := NewEngine(DefaultConfig()).Match([]model.Order{
		mkOrder(1, tokX, "10", tokY, "10"),
		mkOrder(2, tokY, "4", tokX, "4"),
		mkOrder(3, tokY, "6", tokX, "6"),
	})
	assert.Len(t, res.Transfers, 4)
	assert.Empty(t, res.Residuals)
	assert.True(t, res.Fills[1].Sold.Equal(d("10")))
	assert.True(t, res.Fills[1].Received.Equal(d("10")))
}

func TestZeroBuyAmountMatchesRegardlessOfID(t *testing.T) {
	cases := []struct {
		name          string
		zeroID, payID uint64
	}{
		{"zero buy has lower id", 1, 2},
		{"zero buy has higher id", 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := NewEngine(DefaultConfig()).Match([]model.Order{
				mkOrder(tc.zeroID, tokX, "10", tokY, "0"),
				mkOrder(tc.payID, tokY, "10", tokX, "1"),
			})
			require.Len(t, res.Transfers, 2)
			for _, tr := range res.Transfers {
				assert.True(t, tr.Amount.IsPositive())
			}
			require.Len(t, res.Residuals, 1)
			assert.Equal(t, tc.zeroID, res.Residuals[0].Order.ID)

			pay := res.Fills[tc.payID]
			require.NotNil(t, pay)
			assert.True(t, pay.Sold.Equal(d("10")))
			assert.True(t, pay.Received.Equal(d("1")))
		})
	}
}

func TestZeroBuyMemberInsideRing(t *testing.T) {
	// X->Y and Y->Z give for free, Z->X pays a limit
	res := NewEngine(DefaultConfig()).Match([]model.Order{
		mkOrder(1, tokX, "5", tokY, "0"),
		mkOrder(2, tokY, "5", tokZ, "0"),
		mkOrder(3, tokZ, "5", tokX, "5"),
	})
	require.Len(t, res.Transfers, 3)
	for _, tr := range res.Transfers {
		assert.True(t, tr.Amount.IsPositive())
	}
	assert.True(t, res.Fills[3].Received.GreaterThanOrEqual(d("5")))
}

func TestMatchDeterministic(t *testing.T) {
	orders := randomOrders(rand.New(rand.NewSource(7)), 40)
	a := NewEngine(DefaultConfig()).Match(orders)
	b := NewEngine(DefaultConfig()).Match(orders)
	require.Equal(t, len(a.Transfers), len(b.Transfers))
	for i := range a.Transfers {
		assert.Equal(t, a.Transfers[i].FromOrder, b.Transfers[i].FromOrder)
		assert.True(t, a.Transfers[i].Amount.Equal(b.Transfers[i].Amount))
	}
}

// Property: no order ever sells more than it offered, every order is paid at
// least its limit price, and per-token outflow never exceeds offered volume.
func TestMatchConservationProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 30; round++ {
		orders := randomOrders(r, 25)
		res := NewEngine(DefaultConfig()).Match(orders)

		byID := make(map[uint64]model.Order)
		offered := make(map[model.TokenKey]decimal.Decimal)
		for _, o := range orders {
			byID[o.ID] = o
			offered[o.SellToken.Key()] = offered[o.SellToken.Key()].Add(o.SellAmount)
		}
		out := make(map[model.TokenKey]decimal.Decimal)
		for _, tr := range res.Transfers {
			require.True(t, tr.Amount.IsPositive())
			require.True(t, tr.Token.Equal(byID[tr.FromOrder].SellToken))
			require.True(t, tr.Token.Equal(byID[tr.ToOrder].BuyToken))
			out[tr.Token.Key()] = out[tr.Token.Key()].Add(tr.Amount)
		}
		for k, v := range out {
			require.True(t, v.LessThanOrEqual(offered[k]), "round %d token %v", round, k)
		}
		for id, f := range res.Fills {
			o := byID[id]
			require.True(t, f.Sold.LessThanOrEqual(o.SellAmount), "round %d order %d oversold", round, id)
			require.True(t, o.Honours(f.Sold, f.Received), "round %d order %d below limit", round, id)
		}
		for _, rsd := range res.Residuals {
			sold := decimal.Zero
			if f, ok := res.Fills[rsd.Order.ID]; ok {
				sold = f.Sold
			}
			require.True(t, sold.Add(rsd.SellAmount).Equal(rsd.Order.SellAmount))
		}
	}
}

func randomOrders(r *rand.Rand, n int) []model.Order {
	tokens := []model.Token{tokX, tokY, tokZ}
	orders := make([]model.Order, 0, n)
	for i := 0; i < n; i++ {
		s := r.Intn(3)
		b := (s + 1 + r.Intn(2)) % 3
		sell := decimal.NewFromInt(int64(1 + r.Intn(100)))
		buy := decimal.NewFromInt(int64(r.Intn(120))).Div(decimal.NewFromInt(int64(1 + r.Intn(7))))
		o := mkOrder(uint64(i+1), tokens[s], "1", tokens[b], "1")
		o.SellAmount, o.BuyAmount = sell, buy
		orders = append(orders, o)
	}
	return orders
}
