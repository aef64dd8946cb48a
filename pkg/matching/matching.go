// Package matching nets opposing orders of a batch against each other
// ("coincidence of wants") without touching external liquidity.
//
// Orders are matched in rings: o1 sells T1 for T2, o2 sells T2 for T3, ...,
// ok sells Tk for T1. A pair is a ring of length two. A ring crosses when
// Π buy_i <= Π sell_i. Every order except the last in the ring receives
// exactly its limit price (rounded up); the last order keeps the surplus.
// Fills are partial: an order may take part in several rings and whatever
// is left is reported as a residual for routing.
package matching

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

type Config struct {
	// MaxRingLength bounds the cycle search. 2 restricts matching to pairs.
	MaxRingLength int
}

func DefaultConfig() Config {
	return Config{MaxRingLength: 3}
}

// Result is the outcome of matching one batch.
type Result struct {
	Transfers []model.Transfer
	Fills     map[uint64]*model.Fill
	// Residuals holds every order with sell amount left, ascending by id.
	Residuals []model.Residual
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.MaxRingLength < 2 {
		cfg.MaxRingLength = 2
	}
	return &Engine{cfg: cfg}
}

type book struct {
	order     model.Order
	remaining decimal.Decimal
	sold      decimal.Decimal
	received  decimal.Decimal
}

type matcher struct {
	books     []*book
	bySell    map[model.TokenKey][]int
	tried     map[string]struct{}
	transfers []model.Transfer
}

// Match nets the given orders. The input slice is not modified.
// Orders with a non-positive sell amount are ignored.
func (e *Engine) Match(orders []model.Order) Result {
	books := make([]*book, 0, len(orders))
	for _, o := range orders {
		if !o.SellAmount.IsPositive() {
			continue
		}
		books = append(books, &book{order: o, remaining: o.SellAmount, sold: decimal.Zero, received: decimal.Zero})
	}
	slices.SortStableFunc(books, func(a, b *book) int { return cmp.Compare(a.order.ID, b.order.ID) })

	m := &matcher{
		books:  books,
		bySell: make(map[model.TokenKey][]int),
		tried:  make(map[string]struct{}),
	}
	for i, b := range books {
		k := b.order.SellToken.Key()
		m.bySell[k] = append(m.bySell[k], i)
	}

	// shorter rings first: pairs settle before triangles compete for the same volume
	for length := 2; length <= e.cfg.MaxRingLength; length++ {
		// volume only ever shrinks, so anchors already scanned never gain a new ring
		for from := 0; ; {
			ring := m.nextRing(length, from)
			if ring == nil {
				break
			}
			from = ring[0]
			m.tried[ringKey(ring)] = struct{}{}
			m.fill(ring)
		}
	}
	return m.result()
}

// nextRing returns the first untried crossing ring of the given length
// anchored at or after from. Rings are anchored at their lowest-id member
// so each cycle is found once.
func (m *matcher) nextRing(length, from int) []int {
	used := make(map[model.TokenKey]bool, length)
	for start := from; start < len(m.books); start++ {
		b := m.books[start]
		if b.remaining.IsZero() {
			continue
		}
		used[b.order.SellToken.Key()] = true
		ring := m.search([]int{start}, used, length)
		delete(used, b.order.SellToken.Key())
		if ring != nil {
			return ring
		}
	}
	return nil
}

func (m *matcher) search(path []int, used map[model.TokenKey]bool, length int) []int {
	first := m.books[path[0]].order
	last := m.books[path[len(path)-1]].order
	if len(path) == length {
		if !last.BuyToken.Equal(first.SellToken) {
			return nil
		}
		if _, seen := m.tried[ringKey(path)]; seen {
			return nil
		}
		if !m.crosses(path) {
			return nil
		}
		return slices.Clone(path)
	}
	next := last.BuyToken.Key()
	if used[next] {
		return nil
	}
	for _, j := range m.bySell[next] {
		if j <= path[0] || m.books[j].remaining.IsZero() {
			continue
		}
		used[next] = true
		ring := m.search(append(path, j), used, length)
		delete(used, next)
		if ring != nil {
			return ring
		}
	}
	return nil
}

func (m *matcher) crosses(ring []int) bool {
	buy, sell := decimal.NewFromInt(1), decimal.NewFromInt(1)
	for _, i := range ring {
		buy = buy.Mul(m.books[i].order.BuyAmount)
		sell = sell.Mul(m.books[i].order.SellAmount)
	}
	return buy.LessThanOrEqual(sell)
}

// fill executes the largest volume the ring supports and reports whether anything moved.
func (m *matcher) fill(ring []int) bool {
	k := len(ring)
	// a zero-buy member accepts anything, so it closes the ring
	shift := 0
	for i := k - 1; i >= 0; i-- {
		if m.books[ring[i]].order.BuyAmount.IsZero() {
			shift = i + 1
			break
		}
	}
	bs := make([]*book, k)
	for i := range ring {
		bs[i] = m.books[ring[(i+shift)%k]]
	}

	// every zero-buy member ends a chain whose successor's volume is free
	amounts := make([]decimal.Decimal, 0, k)
	for start := 0; start < k; {
		end := start
		for end < k-1 && !bs[end].order.BuyAmount.IsZero() {
			end++
		}
		seg := chainAmounts(bs[start : end+1])
		if seg == nil {
			return false
		}
		amounts = append(amounts, seg...)
		start = end + 1
	}
	closer := bs[k-1].order
	if !closer.Honours(amounts[k-1], amounts[0]) {
		return false
	}

	for p, b := range bs {
		buyer := bs[(p+k-1)%k]
		m.transfers = append(m.transfers, model.Transfer{
			From:      b.order.Owner,
			To:        buyer.order.Owner,
			Token:     b.order.SellToken,
			Amount:    amounts[p],
			Kind:      model.TransferMatch,
			FromOrder: b.order.ID,
			ToOrder:   buyer.order.ID,
		})
		b.remaining = b.remaining.Sub(amounts[p])
		b.sold = b.sold.Add(amounts[p])
		buyer.received = buyer.received.Add(amounts[p])
	}
	return true
}

// chainAmounts sizes a chain in which every member but the last has a
// positive buy amount. q is what the first member sells; every later member p
// caps it at remaining_p * Π_{j<p} sell_j / Π_{j<p} buy_j.
func chainAmounts(bs []*book) []decimal.Decimal {
	q := bs[0].remaining
	num, den := decimal.NewFromInt(1), decimal.NewFromInt(1)
	for p := 1; p < len(bs); p++ {
		prev := bs[p-1].order
		num = num.Mul(prev.SellAmount)
		den = den.Mul(prev.BuyAmount)
		q = decimal.Min(q, model.DivFloor(bs[p].remaining.Mul(num), den))
	}
	return propagate(bs, q)
}

// propagate walks the chain forward: order p-1 must receive at least its
// limit for amounts[p-1], which is what order p sells. Rounding up can push
// a member past its remaining volume; q is then scaled down and retried.
func propagate(bs []*book, q decimal.Decimal) []decimal.Decimal {
	for attempt := 0; attempt < 3; attempt++ {
		if !q.IsPositive() {
			return nil
		}
		amounts := make([]decimal.Decimal, len(bs))
		amounts[0] = q
		ok := true
		for p := 1; p < len(bs); p++ {
			amounts[p] = bs[p-1].order.MinBuyFor(amounts[p-1])
			if !amounts[p].IsPositive() {
				return nil
			}
			if amounts[p].GreaterThan(bs[p].remaining) {
				q = model.DivFloor(q.Mul(bs[p].remaining), amounts[p])
				ok = false
				break
			}
		}
		if ok {
			return amounts
		}
	}
	return nil
}

func (m *matcher) result() Result {
	res := Result{
		Transfers: m.transfers,
		Fills:     make(map[uint64]*model.Fill),
	}
	for _, b := range m.books {
		if b.sold.IsPositive() {
			res.Fills[b.order.ID] = &model.Fill{OrderID: b.order.ID, Sold: b.sold, Received: b.received}
		}
		if b.remaining.IsPositive() {
			res.Residuals = append(res.Residuals, model.NewResidual(b.order, b.sold))
		}
	}
	return res
}

func ringKey(ring []int) string {
	parts := make([]string, len(ring))
	for i, idx := range ring {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ">")
}
