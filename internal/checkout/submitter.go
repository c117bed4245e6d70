package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/cartstore"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// CartStore is the part of the cart store checkout depends on.
type CartStore interface {
	Snapshot() cart.Cart
	OnChange(fn func(cart.Cart))
	Fetch(ctx context.Context) (cart.Cart, error)
	Clear(ctx context.Context) (cart.Cart, error)
}

// Submitter sends the order-creation request and clears the cart once the
// order exists.
type Submitter struct {
	placer order.Placer
	cart   CartStore
}

// NewSubmitter creates a Submitter.
func NewSubmitter(placer order.Placer, store CartStore) *Submitter {
	return &Submitter{placer: placer, cart: store}
}

// Submit places the order. It never retries. After a business rejection the
// cart is re-fetched once so stock classification reflects the server's
// latest view. A failed clear after a successful order is logged only.
func (s *Submitter) Submit(ctx context.Context, req order.PlaceOrderRequest) (*order.Confirmation, error) {
	lg := zctx.From(ctx)

	conf, err := s.placer.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, order.ErrRejected) {
			if _, ferr := s.cart.Fetch(ctx); ferr != nil && !errors.Is(ferr, cartstore.ErrSuperseded) {
				lg.Warn("Refresh cart after rejected order", zap.Error(ferr))
			}
		}
		return nil, err
	}

	lg.Info("Order placed",
		zap.String("order_number", conf.OrderNumber),
		zap.String("order_id", conf.OrderID),
	)

	if _, err := s.cart.Clear(ctx); err != nil {
		lg.Warn("Clear cart after order",
			zap.String("order_number", conf.OrderNumber),
			zap.Error(err),
		)
	}
	return conf, nil
}
