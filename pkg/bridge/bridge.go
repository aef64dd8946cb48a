// Package bridge realizes settlements on a target chain.
package bridge

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

var (
	ErrInvalidChain    = errors.New("invalid target chain")
	ErrExecutionFailed = errors.New("bridge execution failed")
)

type Kind int

const (
	InvalidChain Kind = iota
	ExecutionFailed
)

// Error is the only error type bridges return.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func invalidChain(target model.ChainID) *Error {
	return &Error{Kind: InvalidChain, Detail: fmt.Sprintf("chain %s is not a bridge target", target)}
}

func executionFailed(detail string, err error) *Error {
	return &Error{Kind: ExecutionFailed, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	base := ErrExecutionFailed
	if e.Kind == InvalidChain {
		base = ErrInvalidChain
	}
	msg := base.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidChain:
		return e.Kind == InvalidChain
	case ErrExecutionFailed:
		return e.Kind == ExecutionFailed
	}
	return false
}

// Bridge executes a settlement on target. Calling it again for a settlement
// that already went through must not execute it twice.
type Bridge interface {
	BridgeSettlement(ctx context.Context, s *model.Settlement, target model.ChainID) error
}

// DummyBridge accepts any supported chain and does nothing.
type DummyBridge struct{}

func (DummyBridge) BridgeSettlement(_ context.Context, s *model.Settlement, target model.ChainID) error {
	if s == nil {
		return executionFailed("nil settlement", nil)
	}
	if !target.Supported() {
		return invalidChain(target)
	}
	return nil
}

var _ Bridge = DummyBridge{}
