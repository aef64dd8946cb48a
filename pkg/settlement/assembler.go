// Package settlement builds settlements from matched and routed transfers
// and refuses to emit any settlement that breaks its invariants.
package settlement

import (
	"cmp"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// Input is everything needed to assemble one settlement.
type Input struct {
	Chain          model.ChainID
	BatchTimestamp time.Time
	// Orders is the batch; only orders touched by a transfer are included.
	Orders        []model.Order
	Matched       []model.Transfer
	Routed        []model.Transfer
	ClearingPrice decimal.Decimal
	Unsettled     []model.Residual
}

type Assembler struct{}

func NewAssembler() *Assembler { return &Assembler{} }

// Assemble builds, validates and seals a settlement. Matched transfers come
// before routed ones; included orders are sorted by id.
func (a *Assembler) Assemble(in Input) (*model.Settlement, error) {
	byID := make(map[uint64]model.Order, len(in.Orders))
	for _, o := range in.Orders {
		if _, dup := byID[o.ID]; dup {
			return nil, errors.Wrapf(model.ErrSettlementInvalid, "order %d appears twice", o.ID)
		}
		byID[o.ID] = o
	}

	transfers := make([]model.Transfer, 0, len(in.Matched)+len(in.Routed))
	transfers = append(transfers, in.Matched...)
	transfers = append(transfers, in.Routed...)

	touched := make(map[uint64]struct{})
	for _, t := range transfers {
		if t.Debits() {
			touched[t.FromOrder] = struct{}{}
		}
		if t.Credits() {
			touched[t.ToOrder] = struct{}{}
		}
	}
	included := make([]model.Order, 0, len(touched))
	for id := range touched {
		o, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(model.ErrSettlementInvalid, "transfer references unknown order %d", id)
		}
		included = append(included, o)
	}
	slices.SortFunc(included, func(x, y model.Order) int { return cmp.Compare(x.ID, y.ID) })

	s := &model.Settlement{
		ClearingPrice:  in.ClearingPrice,
		Orders:         included,
		Transfers:      transfers,
		Chain:          in.Chain,
		BatchTimestamp: in.BatchTimestamp,
		Unsettled:      in.Unsettled,
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	if err := s.Seal(); err != nil {
		return nil, errors.Wrap(err, "seal settlement")
	}
	return s, nil
}

// Validate checks every settlement invariant:
//   - included orders are unique, unexpired at the batch timestamp and on the settlement chain
//   - transfers are positive and debit/credit the right owner in the right token
//   - no order sells more than its sell amount, and per token total debits
//     never exceed the sell amount offered by included orders
//   - every order receives at least its limit price for what it sold
//   - the clearing price is positive whenever a transfer exists
func Validate(s *model.Settlement) error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(model.ErrSettlementInvalid, format, args...)
	}

	if len(s.Transfers) > 0 && !s.ClearingPrice.IsPositive() {
		return invalid("clearing price %s must be positive", s.ClearingPrice)
	}

	byID := make(map[uint64]model.Order, len(s.Orders))
	offered := make(map[model.TokenKey]decimal.Decimal)
	for _, o := range s.Orders {
		if _, dup := byID[o.ID]; dup {
			return invalid("order %d included twice", o.ID)
		}
		if o.Expired(s.BatchTimestamp) {
			return invalid("order %d expired before batch", o.ID)
		}
		if !o.SellAmount.IsPositive() {
			return invalid("order %d has non-positive sell amount", o.ID)
		}
		if o.SellToken.Chain != s.Chain || o.BuyToken.Chain != s.Chain {
			return invalid("order %d trades off chain %s", o.ID, s.Chain)
		}
		byID[o.ID] = o
		k := o.SellToken.Key()
		offered[k] = offered[k].Add(o.SellAmount)
	}

	debited := make(map[model.TokenKey]decimal.Decimal)
	for i, t := range s.Transfers {
		if !t.Amount.IsPositive() {
			return invalid("transfer %d amount %s must be positive", i, t.Amount)
		}
		if t.Debits() {
			o, ok := byID[t.FromOrder]
			if !ok {
				return invalid("transfer %d debits order %d which is not included", i, t.FromOrder)
			}
			if t.From != o.Owner || !t.Token.Equal(o.SellToken) {
				return invalid("transfer %d does not debit order %d's owner in its sell token", i, o.ID)
			}
			k := t.Token.Key()
			debited[k] = debited[k].Add(t.Amount)
		}
		if t.Credits() {
			o, ok := byID[t.ToOrder]
			if !ok {
				return invalid("transfer %d credits order %d which is not included", i, t.ToOrder)
			}
			if t.To != o.Owner || !t.Token.Equal(o.BuyToken) {
				return invalid("transfer %d does not credit order %d's owner in its buy token", i, o.ID)
			}
		}
	}

	for k, out := range debited {
		if out.GreaterThan(offered[k]) {
			return invalid("token %s: outgoing %s exceeds available %s", k.Address.Hex(), out, offered[k])
		}
	}

	fills := s.Fills()
	for _, o := range s.Orders {
		f, ok := fills[o.ID]
		if !ok || !f.Sold.IsPositive() {
			return invalid("order %d is included but sells nothing", o.ID)
		}
		if f.Sold.GreaterThan(o.SellAmount) {
			return invalid("order %d sells %s, more than its %s", o.ID, f.Sold, o.SellAmount)
		}
		if !o.Honours(f.Sold, f.Received) {
			return invalid("order %d receives %s for %s, below its limit price", o.ID, f.Received, f.Sold)
		}
	}
	return nil
}
