// Package strategy composes matching, pricing and routing into pluggable
// solving algorithms.
package strategy

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/pkg/matching"
	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/pricing"
	"github.com/uhyunpark/cowsolver/pkg/settlement"
)

// Strategy turns a batch into a settlement. A nil settlement with a nil
// error means the batch cannot be settled, which is an expected outcome.
// A non-nil error is a broken invariant and must reach the caller.
// Implementations are deterministic for identical input.
type Strategy interface {
	Name() string
	Solve(ctx context.Context, batch model.BatchAuction) (*model.Settlement, error)
}

// Deps are the collaborators shared by the built-in strategies.
type Deps struct {
	Chain     model.ChainID
	Matcher   *matching.Engine
	Pricing   pricing.Engine
	Assembler *settlement.Assembler
	Logger    *zap.SugaredLogger
}

func (d *Deps) defaults() {
	if d.Matcher == nil {
		d.Matcher = matching.NewEngine(matching.DefaultConfig())
	}
	if d.Pricing == nil {
		d.Pricing = pricing.NewVolumeWeighted()
	}
	if d.Assembler == nil {
		d.Assembler = settlement.NewAssembler()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
}

// clearingPrice prices the settled orders. When the pricing engine cannot
// (a single routed order, or zero buy volume) the realized rate of the fills
// is used so a settlement with transfers always carries a positive price.
func clearingPrice(engine pricing.Engine, orders []model.Order, fills map[uint64]*model.Fill) decimal.Decimal {
	settled := make([]model.Order, 0, len(fills))
	for _, o := range orders {
		if f, ok := fills[o.ID]; ok && f.Sold.IsPositive() {
			settled = append(settled, o)
		}
	}
	if price, err := engine.ClearingPrice(settled); err == nil && price.IsPositive() {
		return price
	}
	sold, received := decimal.Zero, decimal.Zero
	for _, o := range settled {
		sold = sold.Add(fills[o.ID].Sold)
		received = received.Add(fills[o.ID].Received)
	}
	if !sold.IsPositive() {
		return decimal.Zero
	}
	return model.DivRound(received, sold)
}

func mergeFills(parts ...map[uint64]*model.Fill) map[uint64]*model.Fill {
	out := make(map[uint64]*model.Fill)
	for _, part := range parts {
		for id, f := range part {
			cur, ok := out[id]
			if !ok {
				out[id] = &model.Fill{OrderID: id, Sold: f.Sold, Received: f.Received}
				continue
			}
			cur.Sold = cur.Sold.Add(f.Sold)
			cur.Received = cur.Received.Add(f.Received)
		}
	}
	return out
}

func sortedResiduals(rs []model.Residual) []model.Residual {
	out := slices.Clone(rs)
	slices.SortStableFunc(out, func(a, b model.Residual) int { return cmp.Compare(a.Order.ID, b.Order.ID) })
	return out
}
