package solver

import (
	"cmp"
	"slices"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// Normalize returns the orders sorted by id with duplicate ids collapsed.
// Of several orders sharing an id the one expiring first is kept; equal
// expirations keep input order. The input slice is not modified.
func Normalize(orders []model.Order) []model.Order {
	out := slices.Clone(orders)
	slices.SortStableFunc(out, func(a, b model.Order) int { return a.Expiration.Compare(b.Expiration) })
	slices.SortStableFunc(out, func(a, b model.Order) int { return cmp.Compare(a.ID, b.ID) })
	return slices.CompactFunc(out, func(a, b model.Order) bool { return a.ID == b.ID })
}
