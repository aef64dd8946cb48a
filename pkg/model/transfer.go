package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type TransferKind uint8

const (
	// TransferMatch moves a trader's sell token straight to the counter order's owner.
	TransferMatch TransferKind = iota
	// TransferRouteIn sends a residual to an external liquidity venue.
	TransferRouteIn
	// TransferRouteOut pays a venue's output back to the trader.
	TransferRouteOut
)

func (k TransferKind) String() string {
	switch k {
	case TransferMatch:
		return "match"
	case TransferRouteIn:
		return "route_in"
	case TransferRouteOut:
		return "route_out"
	default:
		return "unknown"
	}
}

func (k TransferKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Transfer is one movement of value inside a settlement.
// FromOrder is set when a trader is debited (match, route_in);
// ToOrder is set when a trader is credited (match, route_out).
type Transfer struct {
	From      common.Address  `json:"from"`
	To        common.Address  `json:"to"`
	Token     Token           `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      TransferKind    `json:"kind"`
	FromOrder uint64          `json:"fromOrder,omitempty"`
	ToOrder   uint64          `json:"toOrder,omitempty"`
}

// Debits reports whether the transfer consumes a trader's sell amount.
func (t Transfer) Debits() bool { return t.Kind == TransferMatch || t.Kind == TransferRouteIn }

// Credits reports whether the transfer pays a trader.
func (t Transfer) Credits() bool { return t.Kind == TransferMatch || t.Kind == TransferRouteOut }

// Fill is the aggregate executed volume of one order.
type Fill struct {
	OrderID  uint64          `json:"orderId"`
	Sold     decimal.Decimal `json:"sold"`
	Received decimal.Decimal `json:"received"`
}

// Residual is the part of an order still to be settled.
type Residual struct {
	Order        Order           `json:"order"`
	SellAmount   decimal.Decimal `json:"sellAmount"`
	MinBuyAmount decimal.Decimal `json:"minBuyAmount"`
	Reason       string          `json:"reason,omitempty"`
}

// NewResidual builds the residual left after selling sold of o.
func NewResidual(o Order, sold decimal.Decimal) Residual {
	remaining := o.SellAmount.Sub(sold)
	return Residual{
		Order:        o,
		SellAmount:   remaining,
		MinBuyAmount: o.MinBuyFor(remaining),
	}
}

func (k *TransferKind) UnmarshalText(b []byte) error {
	for _, c := range []TransferKind{TransferMatch, TransferRouteIn, TransferRouteOut} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return errors.Errorf("unknown transfer kind %q", string(b))
}
