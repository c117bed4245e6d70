package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is a point-in-time copy of the product fields the cart
// needs, taken when the cart was last fetched. It is not live.
type ProductSnapshot struct {
	ID            string
	Name          string
	StockQuantity int
	ReservedStock int
	IsImported    bool
	PacketSize    string
}

// Item is a single cart line.
type Item struct {
	ID         string
	ProductID  string
	Quantity   int
	PriceAtAdd decimal.Decimal
	// Product is nil when the backend did not include a product reference.
	Product *ProductSnapshot
}

// LineTotal returns PriceAtAdd × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.PriceAtAdd.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the authoritative cart snapshot returned by the backend.
type Cart struct {
	Items      []Item
	Subtotal   decimal.Decimal
	TotalItems int
}

// Empty reports whether the cart has no line items.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Recalculate derives Subtotal and TotalItems from Items.
func (c *Cart) Recalculate() {
	subtotal := decimal.Zero
	total := 0
	for _, it := range c.Items {
		subtotal = subtotal.Add(it.LineTotal())
		total += it.Quantity
	}
	c.Subtotal = subtotal
	c.TotalItems = total
}

// Consistent reports whether Subtotal and TotalItems match the items.
func (c Cart) Consistent() bool {
	check := Cart{Items: c.Items}
	check.Recalculate()
	return check.Subtotal.Equal(c.Subtotal) && check.TotalItems == c.TotalItems
}

// Clone returns a deep copy so callers can't mutate a store's snapshot.
func (c Cart) Clone() Cart {
	out := Cart{Subtotal: c.Subtotal, TotalItems: c.TotalItems}
	if c.Items == nil {
		return out
	}
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		if it.Product != nil {
			p := *it.Product
			it.Product = &p
		}
		out.Items[i] = it
	}
	return out
}

// Backend is the remote cart collaborator. Every method returns the full
// cart snapshot the server holds after the operation.
type Backend interface {
	FetchCart(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, productID string, quantity int) (Cart, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (Cart, error)
	RemoveItem(ctx context.Context, itemID string) (Cart, error)
	ClearCart(ctx context.Context) (Cart, error)
}
