package model

import "time"

// BatchAuction is one auction round: the orders collected and the instant the batch was cut.
type BatchAuction struct {
	Orders    []Order   `json:"orders"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBatchAuction(orders []Order, ts time.Time) BatchAuction {
	return BatchAuction{Orders: orders, Timestamp: ts}
}

// LatestExpiration returns the expiration of the longest-lived order.
func (b BatchAuction) LatestExpiration() (time.Time, bool) {
	var latest time.Time
	for i, o := range b.Orders {
		if i == 0 || o.Expiration.After(latest) {
			latest = o.Expiration
		}
	}
	return latest, len(b.Orders) > 0
}
