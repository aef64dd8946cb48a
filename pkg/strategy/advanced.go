package strategy

import (
	"context"

	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/routing"
	"github.com/uhyunpark/cowsolver/pkg/settlement"
)

// Advanced nets the batch internally and routes what is left to external liquidity.
type Advanced struct {
	deps   Deps
	router *routing.Router
}

func NewAdvanced(deps Deps, router *routing.Router) *Advanced {
	deps.defaults()
	if router == nil {
		router = routing.NewRouter(routing.Config{}, deps.Logger)
	}
	return &Advanced{deps: deps, router: router}
}

func (a *Advanced) Name() string { return "advanced" }

func (a *Advanced) Solve(ctx context.Context, batch model.BatchAuction) (*model.Settlement, error) {
	matched := a.deps.Matcher.Match(batch.Orders)
	routed := a.router.Route(ctx, matched.Residuals)

	if len(matched.Transfers) == 0 && len(routed.Transfers) == 0 {
		a.deps.Logger.Debugw("advanced_no_liquidity", "orders", len(batch.Orders), "unsettled", len(routed.Unsettled))
		return nil, nil
	}

	fills := mergeFills(matched.Fills, routed.Fills)
	return a.deps.Assembler.Assemble(settlement.Input{
		Chain:          a.deps.Chain,
		BatchTimestamp: batch.Timestamp,
		Orders:         batch.Orders,
		Matched:        matched.Transfers,
		Routed:         routed.Transfers,
		ClearingPrice:  clearingPrice(a.deps.Pricing, batch.Orders, fills),
		Unsettled:      sortedResiduals(routed.Unsettled),
	})
}

var _ Strategy = (*Advanced)(nil)
