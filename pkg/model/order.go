package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderType int

const (
	Limit OrderType = iota
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	default:
		return "unknown"
	}
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "limit", "":
		*t = Limit
		return nil
	default:
		return errors.Errorf("unknown order type %q", string(b))
	}
}

// Order offers SellAmount of SellToken for at least BuyAmount of BuyToken.
// Fills may be partial; the limit ratio BuyAmount/SellAmount must hold for every fill.
type Order struct {
	ID         uint64          `json:"id"`
	Owner      common.Address  `json:"owner"`
	SellToken  Token           `json:"sellToken"`
	BuyToken   Token           `json:"buyToken"`
	SellAmount decimal.Decimal `json:"sellAmount"`
	BuyAmount  decimal.Decimal `json:"buyAmount"`
	Expiration time.Time       `json:"expiration"`
	Type       OrderType       `json:"type"`
}

// Expired reports whether the order is no longer valid at time at.
// An order expiring exactly at `at` is still valid.
func (o Order) Expired(at time.Time) bool {
	return at.After(o.Expiration)
}

// Validate checks the order against a batch timestamp.
func (o Order) Validate(at time.Time) error {
	switch {
	case o.Expired(at):
		return errors.Wrapf(ErrInvalidOrder, "order %d expired at %s", o.ID, o.Expiration.UTC().Format(time.RFC3339))
	case !o.SellAmount.IsPositive():
		return errors.Wrapf(ErrInvalidOrder, "order %d: sell amount %s must be positive", o.ID, o.SellAmount)
	case o.BuyAmount.IsNegative():
		return errors.Wrapf(ErrInvalidOrder, "order %d: buy amount %s is negative", o.ID, o.BuyAmount)
	case o.SellToken.Equal(o.BuyToken):
		return errors.Wrapf(ErrInvalidOrder, "order %d sells and buys %s", o.ID, o.SellToken)
	}
	return nil
}

// LimitPrice is the minimum BuyToken per SellToken the order accepts.
func (o Order) LimitPrice() decimal.Decimal {
	if o.SellAmount.IsZero() {
		return decimal.Zero
	}
	return DivRound(o.BuyAmount, o.SellAmount)
}

// MinBuyFor returns the smallest amount of BuyToken the order must receive
// for selling sold of SellToken, rounded up.
func (o Order) MinBuyFor(sold decimal.Decimal) decimal.Decimal {
	if o.BuyAmount.IsZero() || sold.IsZero() {
		return decimal.Zero
	}
	return DivCeil(sold.Mul(o.BuyAmount), o.SellAmount)
}

// Honours reports, by exact cross multiplication, whether receiving received
// for selling sold respects the order's limit price.
func (o Order) Honours(sold, received decimal.Decimal) bool {
	return received.Mul(o.SellAmount).GreaterThanOrEqual(sold.Mul(o.BuyAmount))
}
