package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

func newTestEngine() *Engine {
	return NewEngine(DefaultTables())
}

func TestEngine_ZoneFor(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		state string
		want  Zone
	}{
		{"OH", ZoneLocal},
		{"oh", ZoneLocal},
		{" pa ", ZoneLocal},
		{"NY", ZoneRegional},
		{"CA", ZoneNational},
		{"AK", ZoneRemote},
		{"HI", ZoneRemote},
		{"", ZoneNational},
		{"ZZ", ZoneNational},
		{"not-a-state", ZoneNational},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ZoneFor(tt.state))
		})
	}
}

func TestEngine_Shipping(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name      string
		state     string
		subtotal  string
		itemCount int
		method    Method
		want      string
	}{
		{"local below threshold", "OH", "49.99", 3, MethodStandard, "6.49"},
		{"local at threshold", "OH", "50.00", 3, MethodStandard, "0"},
		{"local above threshold", "OH", "80", 10, MethodStandard, "0"},
		{"regional", "NY", "10", 2, MethodStandard, "9.49"},
		{"national at threshold", "CA", "100.00", 4, MethodStandard, "0"},
		{"national one item", "CA", "20", 1, MethodStandard, "10.99"},
		{"remote", "AK", "149.99", 2, MethodStandard, "17.99"},
		{"unknown state is national", "ZZ", "20", 1, MethodStandard, "10.99"},
		{"express on free standard uses floor", "OH", "50.00", 3, MethodExpress, "12.50"},
		{"express on paid standard", "CA", "20", 0, MethodExpress, "19.985"},
		{"express on local paid standard", "OH", "49.99", 3, MethodExpress, "14.735"},
		{"empty method is standard", "OH", "49.99", 3, Method(""), "6.49"},
		{"negative item count clamps to zero", "OH", "10", -4, MethodStandard, "4.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Shipping(tt.state, d(tt.subtotal), tt.itemCount, tt.method)
			assertDecimal(t, tt.want, got)
		})
	}
}

func TestEngine_ShippingMonotonicInSubtotal(t *testing.T) {
	e := newTestEngine()
	tables := e.Tables()

	for _, zone := range Zones {
		states := tables.StatesIn(zone)
		require.NotEmpty(t, states, "zone %s has no states", zone)
		state := states[0]
		threshold := tables.Zones[zone].FreeThreshold

		for items := 0; items <= 5; items++ {
			prev := e.Shipping(state, decimal.Zero, items, MethodStandard)
			for cents := int64(0); cents <= 20000; cents += 37 {
				subtotal := decimal.New(cents, -2)
				got := e.Shipping(state, subtotal, items, MethodStandard)

				require.True(t, got.LessThanOrEqual(prev),
					"zone %s: shipping rose from %s to %s at subtotal %s", zone, prev, got, subtotal)
				if subtotal.GreaterThanOrEqual(threshold) {
					require.True(t, got.IsZero(), "zone %s: expected free shipping at %s", zone, subtotal)
				}
				prev = got
			}
		}
	}
}

func TestEngine_Tax(t *testing.T) {
	e := newTestEngine()

	assertDecimal(t, "7.25", e.Tax("CA", d("100.00")))
	assertDecimal(t, "5.75", e.Tax("OH", d("100")))
	assertDecimal(t, "8", e.Tax("ny", d("100")))
	assertDecimal(t, "6", e.Tax("MT", d("100")))
	assertDecimal(t, "6", e.Tax("", d("100")))
	assertDecimal(t, "0.06", e.TaxRate("??"))
}

func TestEngine_Breakdown(t *testing.T) {
	e := newTestEngine()

	t.Run("CA at national threshold", func(t *testing.T) {
		b := e.Breakdown(d("100.00"), "CA", 2, MethodStandard)

		assert.Equal(t, ZoneNational, b.Zone)
		assert.Equal(t, MethodStandard, b.Method)
		assertDecimal(t, "0", b.Shipping)
		assertDecimal(t, "7.25", b.Tax)
		assertDecimal(t, "107.25", b.Total)
	})

	t.Run("shipping is not taxed", func(t *testing.T) {
		b := e.Breakdown(d("49.99"), "OH", 3, MethodStandard)

		assertDecimal(t, "6.49", b.Shipping)
		assertDecimal(t, "2.874425", b.Tax)
		assertDecimal(t, "59.354425", b.Total)
		assert.True(t, b.Total.Equal(b.Subtotal.Add(b.Shipping).Add(b.Tax)))
	})

	t.Run("rounding happens only on presentation", func(t *testing.T) {
		b := e.Breakdown(d("20"), "CA", 0, MethodExpress)
		assertDecimal(t, "19.985", b.Shipping)

		r := b.Rounded()
		assertDecimal(t, "19.99", r.Shipping)
		assertDecimal(t, "1.45", r.Tax)
		assertDecimal(t, "41.44", r.Total)
	})

	t.Run("unknown method falls back to standard", func(t *testing.T) {
		b := e.Breakdown(d("10"), "OH", 1, Method("drone"))
		assert.Equal(t, MethodStandard, b.Method)
		assertDecimal(t, "5.49", b.Shipping)
	})

	t.Run("unmapped state defaults", func(t *testing.T) {
		first := e.Breakdown(d("10"), "XX", 1, MethodStandard)
		second := e.Breakdown(d("10"), "XX", 1, MethodStandard)

		assert.Equal(t, ZoneNational, first.Zone)
		assertDecimal(t, "0.6", first.Tax)
		assert.Equal(t, first, second)
	})
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("Express")
	require.NoError(t, err)
	assert.Equal(t, MethodExpress, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodStandard, m)

	_, err = ParseMethod("overnight")
	require.Error(t, err)
}
