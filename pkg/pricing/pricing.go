// Package pricing computes the uniform clearing price of a batch.
package pricing

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// Engine computes a single clearing price for a set of orders.
type Engine interface {
	ClearingPrice(orders []model.Order) (decimal.Decimal, error)
}

// VolumeWeighted prices a batch as the sell-volume-weighted average of each
// order's buy/sell ratio:
//
//	Σ (buy_i/sell_i) * sell_i / Σ sell_i = Σ buy_i / Σ sell_i
//
// The reduced form is evaluated so the only rounding is the final division,
// which makes the result independent of input order.
type VolumeWeighted struct{}

func NewVolumeWeighted() VolumeWeighted { return VolumeWeighted{} }

func (VolumeWeighted) ClearingPrice(orders []model.Order) (decimal.Decimal, error) {
	var (
		totalBuy  = decimal.Zero
		totalSell = decimal.Zero
		counted   int
	)
	for _, o := range orders {
		// zero-sell orders cannot define a price
		if o.SellAmount.IsZero() {
			continue
		}
		totalBuy = totalBuy.Add(o.BuyAmount)
		totalSell = totalSell.Add(o.SellAmount)
		counted++
	}
	if counted < 2 {
		return decimal.Zero, errors.Wrapf(model.ErrPriceComputationFailed, "%d priceable orders, need 2", counted)
	}
	if !totalSell.IsPositive() {
		return decimal.Zero, errors.Wrap(model.ErrPriceComputationFailed, "total sell volume is zero")
	}
	return model.DivRound(totalBuy, totalSell), nil
}

var _ Engine = VolumeWeighted{}
