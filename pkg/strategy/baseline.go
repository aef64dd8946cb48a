package strategy

import (
	"context"

	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/settlement"
)

// reasonNoMatch marks residuals the baseline strategy leaves for other strategies.
const reasonNoMatch = "no internal match"

// Baseline settles only what the batch can net internally.
type Baseline struct {
	deps Deps
}

func NewBaseline(deps Deps) *Baseline {
	deps.defaults()
	return &Baseline{deps: deps}
}

func (b *Baseline) Name() string { return "baseline" }

func (b *Baseline) Solve(_ context.Context, batch model.BatchAuction) (*model.Settlement, error) {
	res := b.deps.Matcher.Match(batch.Orders)
	if len(res.Transfers) == 0 {
		b.deps.Logger.Debugw("baseline_no_match", "orders", len(batch.Orders))
		return nil, nil
	}

	unsettled := make([]model.Residual, 0, len(res.Residuals))
	for _, r := range res.Residuals {
		r.Reason = reasonNoMatch
		unsettled = append(unsettled, r)
	}

	return b.deps.Assembler.Assemble(settlement.Input{
		Chain:          b.deps.Chain,
		BatchTimestamp: batch.Timestamp,
		Orders:         batch.Orders,
		Matched:        res.Transfers,
		ClearingPrice:  clearingPrice(b.deps.Pricing, batch.Orders, res.Fills),
		Unsettled:      unsettled,
	})
}

var _ Strategy = (*Baseline)(nil)
