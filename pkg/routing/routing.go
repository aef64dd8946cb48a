// Package routing sends residual volume that internal matching could not net
// to external liquidity sources.
package routing

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/cowsolver/pkg/adapters"
	"github.com/uhyunpark/cowsolver/pkg/model"
)

type Config struct {
	// QuoteTimeout bounds each individual quote request. Zero leaves it to the source.
	QuoteTimeout time.Duration
}

// Result is the outcome of routing a set of residuals.
type Result struct {
	Transfers []model.Transfer
	Fills     map[uint64]*model.Fill
	// Unsettled lists residuals no source could fill, each with a reason.
	Unsettled []model.Residual
}

type Router struct {
	sources []adapters.LiquiditySource
	cfg     Config
	log     *zap.SugaredLogger
}

func NewRouter(cfg Config, log *zap.SugaredLogger, sources ...adapters.LiquiditySource) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{sources: sources, cfg: cfg, log: log}
}

type quote struct {
	source int
	amount decimal.Decimal
}

// Route fills residuals one at a time in the given order, since executing a
// swap moves the source's price for the next residual. Quotes for one
// residual are requested from every source concurrently.
func (r *Router) Route(ctx context.Context, residuals []model.Residual) Result {
	res := Result{Fills: make(map[uint64]*model.Fill)}
	for _, rsd := range residuals {
		if !rsd.SellAmount.IsPositive() {
			continue
		}
		if err := ctx.Err(); err != nil {
			rsd.Reason = err.Error()
			res.Unsettled = append(res.Unsettled, rsd)
			continue
		}
		received, src, ok := r.routeOne(ctx, rsd)
		if !ok {
			rsd.Reason = model.ErrLiquidityUnavailable.Error()
			if err := ctx.Err(); err != nil {
				rsd.Reason = err.Error()
			}
			res.Unsettled = append(res.Unsettled, rsd)
			continue
		}
		o := rsd.Order
		venue := r.sources[src].Address()
		res.Transfers = append(res.Transfers,
			model.Transfer{From: o.Owner, To: venue, Token: o.SellToken, Amount: rsd.SellAmount, Kind: model.TransferRouteIn, FromOrder: o.ID},
			model.Transfer{From: venue, To: o.Owner, Token: o.BuyToken, Amount: received, Kind: model.TransferRouteOut, ToOrder: o.ID},
		)
		res.Fills[o.ID] = &model.Fill{OrderID: o.ID, Sold: rsd.SellAmount, Received: received}
	}
	return res
}

// routeOne executes the residual on the best source whose quote honours the
// order's limit, falling back to the next best when execution errors.
func (r *Router) routeOne(ctx context.Context, rsd model.Residual) (decimal.Decimal, int, bool) {
	o := rsd.Order
	for _, q := range r.quotes(ctx, rsd) {
		if q.amount.LessThan(rsd.MinBuyAmount) {
			// sorted best first: nothing further can honour the limit
			r.log.Debugw("quote_below_limit", "order", o.ID, "source", r.sources[q.source].Name(),
				"quote", q.amount, "min_buy", rsd.MinBuyAmount)
			break
		}
		src := r.sources[q.source]
		received, err := src.ExecuteSwap(ctx, o.SellToken, o.BuyToken, rsd.SellAmount)
		if err != nil {
			r.log.Warnw("swap_failed", "order", o.ID, "err", model.NewAdapterError(src.Name(), "execute_swap", err))
			continue
		}
		if slip, ok := model.Slippage(q.amount, received); ok && !slip.IsZero() {
			r.log.Infow("swap_slippage", "order", o.ID, "source", src.Name(), "quoted", q.amount, "received", received, "slippage", slip)
		}
		if received.LessThan(rsd.MinBuyAmount) || !received.IsPositive() {
			// sell volume is already spent on this venue; do not try another one
			r.log.Warnw("swap_below_limit", "order", o.ID, "source", src.Name(), "received", received, "min_buy", rsd.MinBuyAmount)
			return decimal.Zero, 0, false
		}
		return received, q.source, true
	}
	return decimal.Zero, 0, false
}

// quotes fans out to every source and returns the positive quotes, best first.
// Ties keep source registration order. A failing source is logged and skipped
// without cancelling the others. If ctx ends during the fan-out no quote is
// returned, so nothing executes past the batch deadline.
func (r *Router) quotes(ctx context.Context, rsd model.Residual) []quote {
	o := rsd.Order
	results := make([]decimal.Decimal, len(r.sources))
	var g errgroup.Group
	for i, src := range r.sources {
		g.Go(func() error {
			qctx := ctx
			if r.cfg.QuoteTimeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(ctx, r.cfg.QuoteTimeout)
				defer cancel()
			}
			amount, err := src.GetQuote(qctx, o.SellToken, o.BuyToken, rsd.SellAmount)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Debugw("quote_failed", "order", o.ID, "err", model.NewAdapterError(src.Name(), "get_quote", err))
				return nil
			}
			results[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Debugw("quotes_abandoned", "order", o.ID, "err", err)
		return nil
	}

	var out []quote
	for i, amount := range results {
		if amount.IsPositive() {
			out = append(out, quote{source: i, amount: amount})
		}
	}
	slices.SortStableFunc(out, func(a, b quote) int { return b.amount.Cmp(a.amount) })
	return out
}
