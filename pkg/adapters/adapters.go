// Package adapters holds the capability interfaces the solver consumes from
// the outside world, plus the concrete implementations shipped with it.
package adapters

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// LiquiditySource is an external venue (DEX pool, aggregator) able to fill residual volume.
// A zero quote means the source has no liquidity for the pair. Implementations own
// their timeout and retry policy; callers treat every call as a single attempt.
type LiquiditySource interface {
	Name() string
	// Address is the venue account transfers are sent to and paid from.
	Address() common.Address
	GetQuote(ctx context.Context, sell, buy model.Token, sellAmount decimal.Decimal) (decimal.Decimal, error)
	ExecuteSwap(ctx context.Context, sell, buy model.Token, sellAmount decimal.Decimal) (decimal.Decimal, error)
}

// ChainClient is the solver's access to a chain node.
type ChainClient interface {
	GasPrice(ctx context.Context, chain model.ChainID) (decimal.Decimal, error)
	SubmitTransaction(ctx context.Context, chain model.ChainID, payload []byte) error
}

// DummyDex provides no liquidity: every quote and swap returns zero.
type DummyDex struct{}

func (DummyDex) Name() string            { return "dummy" }
func (DummyDex) Address() common.Address { return common.Address{} }

func (DummyDex) GetQuote(context.Context, model.Token, model.Token, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (DummyDex) ExecuteSwap(context.Context, model.Token, model.Token, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// DummyChainClient reports a zero gas price and accepts every submission.
type DummyChainClient struct{}

func (DummyChainClient) GasPrice(context.Context, model.ChainID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (DummyChainClient) SubmitTransaction(context.Context, model.ChainID, []byte) error { return nil }

var (
	_ LiquiditySource = DummyDex{}
	_ ChainClient     = DummyChainClient{}
)
