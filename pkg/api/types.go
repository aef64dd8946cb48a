package api

import (
	"time"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// API request and response types for REST endpoints and WebSocket messages

// SubmitOrderResponse acknowledges an order accepted into the auction pool
type SubmitOrderResponse struct {
	Status  string `json:"status"`
	OrderID uint64 `json:"orderId"`
	Pending int    `json:"pending"` // orders waiting for the next batch
}

// AuctionInfo is the current content of the auction pool
type AuctionInfo struct {
	Chain   string        `json:"chain"`
	Pending int           `json:"pending"`
	Orders  []model.Order `json:"orders"`
}

// BatchRequest asks for a synchronous solve of the given orders
type BatchRequest struct {
	Orders    []model.Order `json:"orders"`
	Timestamp *time.Time    `json:"timestamp,omitempty"` // defaults to server time
}

// BatchResult is returned by POST /batches. Exactly one of Settlement and
// Unsettled is populated.
type BatchResult struct {
	Status     string            `json:"status"` // "settled" or "unsettled"
	Settlement *model.Settlement `json:"settlement,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Unsettled  []model.Residual  `json:"unsettled,omitempty"`
}

// ChainInfo describes a supported chain
type ChainInfo struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Solver bool   `json:"solver"` // the chain this node settles on
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

const (
	ChannelSettlements = "settlements"
	ChannelUnsettled   = "unsettled"
)

// WSSubscribeRequest is sent by clients to (un)subscribe from channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// SettlementUpdate is pushed on the settlements channel
type SettlementUpdate struct {
	Type       string            `json:"type"`
	Settlement *model.Settlement `json:"settlement"`
	Source     string            `json:"source"` // "local" or the gossiping peer
	Timestamp  int64             `json:"timestamp"`
}

// UnsettledUpdate is pushed on the unsettled channel
type UnsettledUpdate struct {
	Type      string           `json:"type"`
	Reason    string           `json:"reason"`
	Unsettled []model.Residual `json:"unsettled"`
	Timestamp int64            `json:"timestamp"`
}
