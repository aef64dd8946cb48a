package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidOrder marks an order that is expired or has a non-positive sell amount.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrPriceComputationFailed is returned when fewer than two orders (or zero volume) can define a price.
	ErrPriceComputationFailed = errors.New("price computation failed")
	// ErrLiquidityUnavailable means neither internal matching nor any external source could fill a residual.
	ErrLiquidityUnavailable = errors.New("liquidity unavailable")
	// ErrSettlementInvalid signals a conservation, price or expiry violation at assembly time.
	ErrSettlementInvalid = errors.New("settlement invalid")
	// ErrAdapter wraps any failure coming from an external liquidity, chain or bridge call.
	ErrAdapter = errors.New("adapter error")
	// ErrNoSettlement is the expected outcome when a batch cannot be settled.
	ErrNoSettlement = errors.New("no settlement found")
	// ErrBatchExpired is returned when every order expired before a settlement was produced.
	ErrBatchExpired = errors.New("batch expired before settlement")
)

// AdapterError records which external component failed and on which call.
type AdapterError struct {
	Source string
	Op     string
	Err    error
}

func NewAdapterError(source, op string, err error) *AdapterError {
	return &AdapterError{Source: source, Op: op, Err: err}
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func (e *AdapterError) Is(target error) bool { return target == ErrAdapter }

// UnsettledBatchError is returned by the solver when no strategy produced a settlement.
// It lists every order that stayed unsettled and why.
type UnsettledBatchError struct {
	Reason    string
	Unsettled []Residual
	expired   bool
}

func NewUnsettledBatchError(reason string, unsettled []Residual) *UnsettledBatchError {
	return &UnsettledBatchError{Reason: reason, Unsettled: unsettled}
}

// NewExpiredBatchError reports a solve aborted because every order expired.
func NewExpiredBatchError(unsettled []Residual) *UnsettledBatchError {
	return &UnsettledBatchError{Reason: ErrBatchExpired.Error(), Unsettled: unsettled, expired: true}
}

func (e *UnsettledBatchError) Error() string {
	ids := make([]string, 0, len(e.Unsettled))
	for _, r := range e.Unsettled {
		ids = append(ids, fmt.Sprint(r.Order.ID))
	}
	return fmt.Sprintf("%s: %s (orders: %s)", ErrNoSettlement, e.Reason, strings.Join(ids, ","))
}

func (e *UnsettledBatchError) Is(target error) bool {
	if target == ErrNoSettlement {
		return true
	}
	return e.expired && target == ErrBatchExpired
}
