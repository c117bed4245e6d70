// Package handler serves the pricing quote API.
package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// EngineSource returns the engine to price with. The engine may be swapped
// between requests when rate tables are reloaded.
type EngineSource interface {
	Engine() *pricing.Engine
}

// Handler serves quote and zone lookups.
type Handler struct {
	engines EngineSource
	quotes  metric.Int64Counter
}

// NewHandler constructs a Handler. Quotes are counted on meter.
func NewHandler(engines EngineSource, meter metric.Meter) (*Handler, error) {
	quotes, err := meter.Int64Counter("kart.pricing.quotes",
		metric.WithDescription("Number of price quotes served"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return nil, err
	}
	return &Handler{engines: engines, quotes: quotes}, nil
}

// Register mounts the API routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quote", h.Quote)
	mux.HandleFunc("GET /api/zones", h.ListZones)
	mux.HandleFunc("GET /api/zones/{state}", h.GetZone)
}
