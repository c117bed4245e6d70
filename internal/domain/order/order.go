package order

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrRejected matches any order the storefront refused on business grounds
// (stock, address, validation). Transport failures never match it.
var ErrRejected = errors.New("order rejected")

// PlaceOrderRequest is the single order-creation intent sent to the
// storefront. IdempotencyKey stays the same across retries of one intent.
type PlaceOrderRequest struct {
	AddressID      string
	CustomerNotes  string
	IdempotencyKey string
}

// Confirmation holds what the storefront returned for a placed order.
type Confirmation struct {
	OrderNumber string
	OrderID     string
	Status      string
}

// Placer creates orders on the storefront backend.
type Placer interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Confirmation, error)
}
