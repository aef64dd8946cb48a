// Package solver is the entry point that turns a batch auction into a
// settlement: it normalizes the batch, drops orders that cannot take part and
// runs the configured strategies in fallback order.
package solver

import (
	"cmp"
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/strategy"
	"github.com/uhyunpark/cowsolver/pkg/util"
)

const (
	reasonOffChain   = "order token not on solver chain"
	reasonNoStrategy = "no strategy produced a settlement"
)

type Config struct {
	Chain model.ChainID
}

type Solver struct {
	cfg        Config
	strategies []strategy.Strategy
	clock      util.Clock
	log        *zap.SugaredLogger
}

// New builds a solver that tries strategies in the given order and returns
// the first settlement produced.
func New(cfg Config, clock util.Clock, log *zap.SugaredLogger, strategies ...strategy.Strategy) *Solver {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Solver{cfg: cfg, strategies: strategies, clock: clock, log: log}
}

func (s *Solver) Chain() model.ChainID { return s.cfg.Chain }

// ProcessBatch solves one batch. When nothing can be settled it returns a
// *model.UnsettledBatchError listing every order with the reason it was left
// out; errors.Is(err, model.ErrNoSettlement) holds for it. Broken settlement
// invariants surface as errors wrapping model.ErrSettlementInvalid.
func (s *Solver) ProcessBatch(ctx context.Context, batch model.BatchAuction) (*model.Settlement, error) {
	valid, rejected := s.admit(batch)
	if len(valid) == 0 {
		s.log.Infow("batch_unsettled", "orders", len(batch.Orders), "reason", "no valid orders")
		return nil, model.NewUnsettledBatchError("no valid orders", rejected)
	}

	normalized := model.NewBatchAuction(valid, batch.Timestamp)
	deadline, _ := normalized.LatestExpiration()
	remaining := func() []model.Residual {
		out := make([]model.Residual, 0, len(valid)+len(rejected))
		for _, o := range valid {
			r := model.NewResidual(o, decimal.Zero)
			r.Reason = model.ErrBatchExpired.Error()
			out = append(out, r)
		}
		return sortResiduals(append(out, rejected...))
	}

	now := s.clock.Now()
	if now.After(deadline) {
		s.log.Warnw("batch_expired", "orders", len(valid), "deadline", deadline)
		return nil, model.NewExpiredBatchError(remaining())
	}
	sctx, cancel := context.WithTimeout(ctx, deadline.Sub(now))
	defer cancel()

	for _, st := range s.strategies {
		settlement, err := st.Solve(sctx, normalized)
		if err != nil {
			return nil, errors.Wrapf(err, "strategy %s", st.Name())
		}
		if s.clock.Now().After(deadline) || (sctx.Err() != nil && ctx.Err() == nil) {
			s.log.Warnw("batch_expired", "orders", len(valid), "strategy", st.Name(), "deadline", deadline)
			return nil, model.NewExpiredBatchError(remaining())
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "process batch")
		}
		if settlement == nil {
			s.log.Debugw("strategy_no_settlement", "strategy", st.Name(), "orders", len(valid))
			continue
		}

		settlement.Unsettled = sortResiduals(append(settlement.Unsettled, rejected...))
		s.log.Infow("batch_solved",
			"settlement", settlement.ID,
			"strategy", st.Name(),
			"orders", len(settlement.Orders),
			"transfers", len(settlement.Transfers),
			"unsettled", len(settlement.Unsettled),
			"clearing_price", settlement.ClearingPrice,
		)
		return settlement, nil
	}

	unsettled := make([]model.Residual, 0, len(valid)+len(rejected))
	for _, o := range valid {
		r := model.NewResidual(o, decimal.Zero)
		r.Reason = reasonNoStrategy
		unsettled = append(unsettled, r)
	}
	unsettled = sortResiduals(append(unsettled, rejected...))
	s.log.Infow("batch_unsettled", "orders", len(batch.Orders), "reason", reasonNoStrategy)
	return nil, model.NewUnsettledBatchError(reasonNoStrategy, unsettled)
}

// admit normalizes the batch and splits it into orders that may take part and
// residuals for the ones that may not.
func (s *Solver) admit(batch model.BatchAuction) ([]model.Order, []model.Residual) {
	var valid []model.Order
	var rejected []model.Residual
	for _, o := range Normalize(batch.Orders) {
		reason := ""
		if err := o.Validate(batch.Timestamp); err != nil {
			reason = err.Error()
		} else if o.SellToken.Chain != s.cfg.Chain || o.BuyToken.Chain != s.cfg.Chain {
			reason = reasonOffChain
		}
		if reason != "" {
			r := model.NewResidual(o, decimal.Zero)
			r.Reason = reason
			rejected = append(rejected, r)
			s.log.Debugw("order_rejected", "order", o.ID, "reason", reason)
			continue
		}
		valid = append(valid, o)
	}
	return valid, rejected
}

func sortResiduals(rs []model.Residual) []model.Residual {
	slices.SortStableFunc(rs, func(a, b model.Residual) int { return cmp.Compare(a.Order.ID, b.Order.ID) })
	return rs
}
