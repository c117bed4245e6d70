// Package cartstore holds the client-side cart snapshot. Every mutation is a
// round trip to the backend and the response replaces the snapshot as a
// whole; nothing is patched locally.
package cartstore

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var (
	// ErrInvalidQuantity is returned for a quantity below 1. No request is
	// sent.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrMissingID is returned when a product or item id is empty.
	ErrMissingID = errors.New("id is required")
	// ErrSuperseded is returned when a response arrived after the response
	// to a later request was already applied. The snapshot is unchanged.
	ErrSuperseded = errors.New("cart response superseded by a newer request")
)

// Store is the single writer of the cart snapshot. It is safe for
// concurrent use; responses are applied in the order requests were issued.
type Store struct {
	backend cart.Backend

	mu        sync.Mutex
	snapshot  cart.Cart
	issued    uint64
	applied   uint64
	listeners []func(cart.Cart)

	notifyMu sync.Mutex
	notified uint64
}

// New creates an empty Store backed by b.
func New(b cart.Backend) *Store {
	return &Store{backend: b}
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// OnChange registers fn to be called with every applied snapshot.
// Listeners run outside the store lock and may call Snapshot, but must not
// mutate the store.
func (s *Store) OnChange(fn func(cart.Cart)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Fetch loads the cart from the backend.
func (s *Store) Fetch(ctx context.Context) (cart.Cart, error) {
	return s.run(ctx, "fetch", func(ctx context.Context) (cart.Cart, error) {
		return s.backend.FetchCart(ctx)
	})
}

// AddItem adds quantity units of productID.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) (cart.Cart, error) {
	if strings.TrimSpace(productID) == "" {
		return cart.Cart{}, errors.Wrap(ErrMissingID, "product")
	}
	if quantity < 1 {
		return cart.Cart{}, ErrInvalidQuantity
	}
	return s.run(ctx, "add", func(ctx context.Context) (cart.Cart, error) {
		return s.backend.AddItem(ctx, productID, quantity)
	})
}

// UpdateItem sets the quantity of an existing line.
func (s *Store) UpdateItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error) {
	if strings.TrimSpace(itemID) == "" {
		return cart.Cart{}, errors.Wrap(ErrMissingID, "item")
	}
	if quantity < 1 {
		return cart.Cart{}, ErrInvalidQuantity
	}
	return s.run(ctx, "update", func(ctx context.Context) (cart.Cart, error) {
		return s.backend.UpdateItem(ctx, itemID, quantity)
	})
}

// RemoveItem deletes a line.
func (s *Store) RemoveItem(ctx context.Context, itemID string) (cart.Cart, error) {
	if strings.TrimSpace(itemID) == "" {
		return cart.Cart{}, errors.Wrap(ErrMissingID, "item")
	}
	return s.run(ctx, "remove", func(ctx context.Context) (cart.Cart, error) {
		return s.backend.RemoveItem(ctx, itemID)
	})
}

// Clear empties the cart. The backend's response is applied like any other
// mutation, so lines the server kept (e.g. a concurrent add) stay visible.
func (s *Store) Clear(ctx context.Context) (cart.Cart, error) {
	return s.run(ctx, "clear", func(ctx context.Context) (cart.Cart, error) {
		return s.backend.ClearCart(ctx)
	})
}

func (s *Store) run(ctx context.Context, op string, call func(ctx context.Context) (cart.Cart, error)) (cart.Cart, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	c, err := call(ctx)
	if err != nil {
		return cart.Cart{}, err
	}

	s.mu.Lock()
	if seq < s.applied {
		applied := s.applied
		s.mu.Unlock()
		zctx.From(ctx).Debug("Discarding stale cart response",
			zap.String("op", op),
			zap.Uint64("seq", seq),
			zap.Uint64("applied", applied),
		)
		return cart.Cart{}, ErrSuperseded
	}
	s.applied = seq
	s.snapshot = c.Clone()
	listeners := append(([]func(cart.Cart))(nil), s.listeners...)
	s.mu.Unlock()

	s.notify(seq, c, listeners)
	return c.Clone(), nil
}

// notify runs listeners for seq unless a newer snapshot was already
// announced.
func (s *Store) notify(seq uint64, c cart.Cart, listeners []func(cart.Cart)) {
	if len(listeners) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq < s.notified {
		return
	}
	s.notified = seq
	for _, fn := range listeners {
		fn(c.Clone())
	}
}
