package solver

import (
	"sync"
	"time"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// Pool collects submitted orders until the next batch is cut.
// Orders leave the pool in admission order.
type Pool struct {
	mu     sync.Mutex
	orders []model.Order
}

func NewPool() *Pool {
	return &Pool{}
}

// Push validates the order against now and enqueues it.
func (p *Pool) Push(o model.Order, now time.Time) error {
	if err := o.Validate(now); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o)
	return nil
}

// Cut removes up to maxOrders orders (all when maxOrders <= 0) and returns
// them as a batch stamped ts. Orders already expired at ts are dropped.
func (p *Pool) Cut(ts time.Time, maxOrders int) model.BatchAuction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []model.Order
	taken := 0
	for _, o := range p.orders {
		if maxOrders > 0 && len(out) == maxOrders {
			break
		}
		taken++
		if o.Expired(ts) {
			continue
		}
		out = append(out, o)
	}
	p.orders = p.orders[taken:]
	return model.NewBatchAuction(out, ts)
}

// Snapshot returns the pending orders without removing them.
func (p *Pool) Snapshot() []model.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Order(nil), p.orders...)
}

// Len returns the number of pending orders.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}
