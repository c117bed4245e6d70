package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// TablesLoader fetches the current rate tables.
type TablesLoader func(ctx context.Context) (pricing.Tables, error)

// Engines holds the live pricing engine and swaps it when tables reload.
// A failed reload keeps the previous engine.
type Engines struct {
	load     TablesLoader
	current  atomic.Pointer[pricing.Engine]
	loadedAt atomic.Int64
}

// NewEngines performs the initial load. It fails if that load fails.
func NewEngines(ctx context.Context, load TablesLoader) (*Engines, error) {
	e := &Engines{load: load}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// StaticEngines serves fixed tables that never reload.
func StaticEngines(t pricing.Tables) *Engines {
	e := &Engines{load: func(context.Context) (pricing.Tables, error) { return t, nil }}
	e.swap(t)
	return e
}

// Engine returns the current engine.
func (e *Engines) Engine() *pricing.Engine {
	return e.current.Load()
}

// LoadedAt returns when the current engine's tables were loaded.
func (e *Engines) LoadedAt() time.Time {
	ns := e.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reload fetches tables once and swaps them in.
func (e *Engines) Reload(ctx context.Context) error {
	t, err := e.load(ctx)
	if err != nil {
		return err
	}
	e.swap(t)
	return nil
}

func (e *Engines) swap(t pricing.Tables) {
	e.current.Store(pricing.NewEngine(t))
	e.loadedAt.Store(time.Now().UnixNano())
}

// Watch reloads every interval until ctx is done.
func (e *Engines) Watch(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Reload(ctx); err != nil {
				lg.Warn("Reload rate tables", zap.Error(err))
				continue
			}
			lg.Debug("Rate tables reloaded")
		}
	}
}
