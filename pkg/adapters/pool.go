package adapters

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

const bpsDenominator = 10_000

// PoolAddress derives a stable venue address for a named in-process pool.
func PoolAddress(name string) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("cowsolver/pool/" + name))
	return common.BytesToAddress(h.Sum(nil))
}

// ConstantProductPool is an in-process x*y=k pool. It backs devnet routing and
// tests with a liquidity source whose price moves with every executed swap.
type ConstantProductPool struct {
	name    string
	address common.Address
	feeBps  int64

	mu       sync.Mutex
	token0   model.Token
	token1   model.Token
	reserve0 decimal.Decimal
	reserve1 decimal.Decimal
}

func NewConstantProductPool(name string, address common.Address, token0 model.Token, reserve0 decimal.Decimal, token1 model.Token, reserve1 decimal.Decimal, feeBps int64) *ConstantProductPool {
	return &ConstantProductPool{
		name:     name,
		address:  address,
		feeBps:   feeBps,
		token0:   token0,
		token1:   token1,
		reserve0: reserve0,
		reserve1: reserve1,
	}
}

func (p *ConstantProductPool) Name() string            { return p.name }
func (p *ConstantProductPool) Address() common.Address { return p.address }

// Reserves returns the current reserves of token0 and token1.
func (p *ConstantProductPool) Reserves() (decimal.Decimal, decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve0, p.reserve1
}

func (p *ConstantProductPool) GetQuote(ctx context.Context, sell, buy model.Token, sellAmount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out, _ := p.quoteLocked(sell, buy, sellAmount)
	return out, nil
}

func (p *ConstantProductPool) ExecuteSwap(ctx context.Context, sell, buy model.Token, sellAmount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out, sellIs0 := p.quoteLocked(sell, buy, sellAmount)
	if !out.IsPositive() {
		return decimal.Zero, nil
	}
	if sellIs0 {
		p.reserve0 = p.reserve0.Add(sellAmount)
		p.reserve1 = p.reserve1.Sub(out)
	} else {
		p.reserve1 = p.reserve1.Add(sellAmount)
		p.reserve0 = p.reserve0.Sub(out)
	}
	return out, nil
}

// quoteLocked returns the output amount (rounded down) and the swap direction.
// Pairs the pool does not hold quote zero.
func (p *ConstantProductPool) quoteLocked(sell, buy model.Token, amount decimal.Decimal) (decimal.Decimal, bool) {
	var rin, rout decimal.Decimal
	var sellIs0 bool
	switch {
	case sell.Equal(p.token0) && buy.Equal(p.token1):
		rin, rout, sellIs0 = p.reserve0, p.reserve1, true
	case sell.Equal(p.token1) && buy.Equal(p.token0):
		rin, rout = p.reserve1, p.reserve0
	default:
		return decimal.Zero, false
	}
	if !amount.IsPositive() || !rin.IsPositive() || !rout.IsPositive() {
		return decimal.Zero, sellIs0
	}
	inWithFee := amount.Mul(decimal.NewFromInt(bpsDenominator - p.feeBps))
	denom := rin.Mul(decimal.NewFromInt(bpsDenominator)).Add(inWithFee)
	return model.DivFloor(inWithFee.Mul(rout), denom), sellIs0
}

var _ LiquiditySource = (*ConstantProductPool)(nil)
