// Package pricing computes shipping, tax and the price breakdown for a cart
// destination. The engine is pure and never fails: unknown states and
// methods degrade to the configured defaults.
package pricing

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Zone is a shipping-cost tier derived from the destination state.
type Zone string

const (
	ZoneLocal    Zone = "local"
	ZoneRegional Zone = "regional"
	ZoneNational Zone = "national"
	ZoneRemote   Zone = "remote"
)

// Zones lists the known zones from nearest to farthest.
var Zones = []Zone{ZoneLocal, ZoneRegional, ZoneNational, ZoneRemote}

// ParseZone validates a zone name.
func ParseZone(s string) (Zone, error) {
	z := Zone(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Zones {
		if z == known {
			return z, nil
		}
	}
	return "", errors.Errorf("unknown shipping zone %q", s)
}

// Method is the shipping speed chosen at checkout.
type Method string

const (
	MethodStandard Method = "standard"
	MethodExpress  Method = "express"
)

// ParseMethod validates a shipping method name. Empty means standard.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodStandard:
		return MethodStandard, nil
	case MethodExpress:
		return MethodExpress, nil
	default:
		return "", errors.Errorf("unknown shipping method %q", s)
	}
}

// Breakdown is the derived price of an order. Total is always
// Subtotal + Shipping + Tax at full precision.
type Breakdown struct {
	Zone     Zone
	Method   Method
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Rounded returns a copy with every amount rounded to cents for display.
func (b Breakdown) Rounded() Breakdown {
	b.Subtotal = b.Subtotal.Round(2)
	b.Shipping = b.Shipping.Round(2)
	b.Tax = b.Tax.Round(2)
	b.Total = b.Total.Round(2)
	return b
}

// Engine prices orders against a fixed set of Tables.
type Engine struct {
	tables Tables
}

// NewEngine returns an Engine over t. The tables must have passed Validate.
func NewEngine(t Tables) *Engine {
	return &Engine{tables: t}
}

// Tables returns the tables the engine prices against.
func (e *Engine) Tables() Tables {
	return e.tables
}

// ZoneFor resolves the shipping zone for a state code.
func (e *Engine) ZoneFor(state string) Zone {
	if z, ok := e.tables.StateZones[normalizeState(state)]; ok {
		return z
	}
	return e.tables.DefaultZone
}

// TaxRate returns the rate applied to the subtotal for a state.
func (e *Engine) TaxRate(state string) decimal.Decimal {
	if r, ok := e.tables.TaxRates[normalizeState(state)]; ok {
		return r
	}
	return e.tables.DefaultTaxRate
}

// Shipping computes the shipping charge. Express is charged even when
// standard shipping would be free.
func (e *Engine) Shipping(state string, subtotal decimal.Decimal, itemCount int, method Method) decimal.Decimal {
	standard := e.standardShipping(e.ZoneFor(state), subtotal, itemCount)
	if method != MethodExpress {
		return standard
	}

	x := e.tables.Express
	basis := standard
	if basis.IsZero() {
		basis = x.Floor
	}
	return basis.Mul(x.Multiplier).Add(x.Surcharge)
}

func (e *Engine) standardShipping(zone Zone, subtotal decimal.Decimal, itemCount int) decimal.Decimal {
	rate := e.tables.Zones[zone]
	if subtotal.GreaterThanOrEqual(rate.FreeThreshold) {
		return decimal.Zero
	}
	if itemCount < 0 {
		itemCount = 0
	}
	return rate.Base.Add(rate.PerItem.Mul(decimal.NewFromInt(int64(itemCount))))
}

// Tax computes tax on the subtotal only; shipping is never taxed.
func (e *Engine) Tax(state string, subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(e.TaxRate(state))
}

// Breakdown computes the full price breakdown.
func (e *Engine) Breakdown(subtotal decimal.Decimal, state string, itemCount int, method Method) Breakdown {
	if method != MethodExpress {
		method = MethodStandard
	}
	shipping := e.Shipping(state, subtotal, itemCount, method)
	tax := e.Tax(state, subtotal)
	return Breakdown{
		Zone:     e.ZoneFor(state),
		Method:   method,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
