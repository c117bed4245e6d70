package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// badRequest carries a message safe to show the caller.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

type quoteParams struct {
	state    string
	subtotal decimal.Decimal
	items    int
	method   pricing.Method
}

func parseQuoteParams(r *http.Request) (quoteParams, error) {
	q := r.URL.Query()
	p := quoteParams{state: strings.ToUpper(strings.TrimSpace(q.Get("state")))}

	raw := strings.TrimSpace(q.Get("subtotal"))
	if raw == "" {
		return quoteParams{}, &badRequest{msg: "subtotal is required"}
	}
	subtotal, err := decimal.NewFromString(raw)
	if err != nil || subtotal.IsNegative() {
		return quoteParams{}, &badRequest{msg: "subtotal must be a non-negative amount"}
	}
	p.subtotal = subtotal

	if raw := strings.TrimSpace(q.Get("items")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return quoteParams{}, &badRequest{msg: "items must be a non-negative integer"}
		}
		p.items = n
	}

	method, err := pricing.ParseMethod(q.Get("method"))
	if err != nil {
		return quoteParams{}, &badRequest{msg: err.Error()}
	}
	p.method = method
	return p, nil
}

// Quote prices a cart for a destination state and shipping method.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	p, err := parseQuoteParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	engine := h.engines.Engine()
	b := engine.Breakdown(p.subtotal, p.state, p.items, p.method).Rounded()
	h.quotes.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("zone", string(b.Zone)),
		attribute.String("method", string(b.Method)),
	))

	writeData(w, r, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(p.state) })
			e.Field("zone", func(e *jx.Encoder) { e.Str(string(b.Zone)) })
			e.Field("method", func(e *jx.Encoder) { e.Str(string(b.Method)) })
			e.Field("subtotal", money(b.Subtotal))
			e.Field("shipping", money(b.Shipping))
			e.Field("tax", money(b.Tax))
			e.Field("total", money(b.Total))
			e.Field("taxRate", func(e *jx.Encoder) { e.Str(engine.TaxRate(p.state).String()) })
		})
	})
}

// GetZone reports the zone and tax rate for one state.
func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(strings.TrimSpace(r.PathValue("state")))
	if state == "" {
		h.fail(w, r, &badRequest{msg: "state is required"})
		return
	}
	engine := h.engines.Engine()
	_, mapped := engine.Tables().StateZones[state]

	writeData(w, r, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(state) })
			e.Field("zone", func(e *jx.Encoder) { e.Str(string(engine.ZoneFor(state))) })
			e.Field("mapped", func(e *jx.Encoder) { e.Bool(mapped) })
			e.Field("taxRate", func(e *jx.Encoder) { e.Str(engine.TaxRate(state).String()) })
		})
	})
}

// ListZones returns every zone's rate card and member states.
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	t := h.engines.Engine().Tables()

	writeData(w, r, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, zone := range pricing.Zones {
				rate, ok := t.Zones[zone]
				if !ok {
					continue
				}
				e.Obj(func(e *jx.Encoder) {
					e.Field("zone", func(e *jx.Encoder) { e.Str(string(zone)) })
					e.Field("base", money(rate.Base))
					e.Field("perItem", money(rate.PerItem))
					e.Field("freeThreshold", money(rate.FreeThreshold))
					e.Field("default", func(e *jx.Encoder) { e.Bool(zone == t.DefaultZone) })
					e.Field("states", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, s := range t.StatesIn(zone) {
								e.Str(s)
							}
						})
					})
				})
			}
		})
	})
}

// money encodes an amount as a two-decimal string.
func money(d decimal.Decimal) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { e.Str(d.StringFixed(2)) }
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var br *badRequest
	if errors.As(err, &br) {
		writeError(w, r, http.StatusBadRequest, br.msg)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}
