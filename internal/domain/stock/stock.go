// Package stock classifies cart lines against the stock figures carried in
// the cart snapshot. Everything here is pure: the same snapshot always
// yields the same classification.
package stock

import (
	"fmt"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Status is the derived availability of one cart line.
type Status struct {
	AvailableUnits int
	OutOfStock     bool
	ExceedsStock   bool
	// LowStock overlaps ExceedsStock and is informational only.
	LowStock bool
}

// OK reports whether none of the flags are set.
func (s Status) OK() bool {
	return !s.OutOfStock && !s.ExceedsStock && !s.LowStock
}

// Blocking reports whether the line must be fixed before an order is placed.
func (s Status) Blocking() bool {
	return s.OutOfStock || s.ExceedsStock
}

// AvailableUnits returns max(0, stock − reserved).
func AvailableUnits(stockQuantity, reservedStock int) int {
	if reservedStock < 0 {
		reservedStock = 0
	}
	n := stockQuantity - reservedStock
	if n < 0 {
		return 0
	}
	return n
}

// Classify derives the availability of a single line. A line without a
// product snapshot is treated as out of stock.
func Classify(item cart.Item) Status {
	if item.Product == nil {
		return Status{OutOfStock: true, ExceedsStock: item.Quantity > 0}
	}
	avail := AvailableUnits(item.Product.StockQuantity, item.Product.ReservedStock)
	return Status{
		AvailableUnits: avail,
		OutOfStock:     avail == 0,
		ExceedsStock:   item.Quantity > avail,
		LowStock:       avail > 0 && avail < item.Quantity,
	}
}

// Report is the classification of a whole cart.
type Report struct {
	PerItem          map[string]Status
	HasBlockingIssue bool

	items []cart.Item
}

// ClassifyAll classifies every line and folds the blocking flags.
func ClassifyAll(items []cart.Item) Report {
	r := Report{
		PerItem: make(map[string]Status, len(items)),
		items:   items,
	}
	for _, it := range items {
		s := Classify(it)
		r.PerItem[it.ID] = s
		if s.Blocking() {
			r.HasBlockingIssue = true
		}
	}
	return r
}

// Issue is a user-facing description of a problem with one line.
type Issue struct {
	ItemID   string
	Blocking bool
	Message  string
}

// Issues lists problems in cart order. Blocking issues come from
// OutOfStock/ExceedsStock; LowStock alone is never reported since it
// implies ExceedsStock.
func (r Report) Issues() []Issue {
	var out []Issue
	for _, it := range r.items {
		s, ok := r.PerItem[it.ID]
		if !ok || !s.Blocking() {
			continue
		}
		name := productName(it)
		msg := fmt.Sprintf("only %d of %s available", s.AvailableUnits, name)
		if s.OutOfStock {
			msg = fmt.Sprintf("%s is out of stock", name)
		}
		out = append(out, Issue{ItemID: it.ID, Blocking: true, Message: msg})
	}
	return out
}

func productName(it cart.Item) string {
	if it.Product != nil && it.Product.Name != "" {
		return it.Product.Name
	}
	return "product " + it.ProductID
}
