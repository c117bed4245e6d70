package stock

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

func newItem(id string, qty, stockQty, reserved int) cart.Item {
	return cart.Item{
		ID:         id,
		ProductID:  "p-" + id,
		Quantity:   qty,
		PriceAtAdd: decimal.NewFromInt(10),
		Product: &cart.ProductSnapshot{
			ID:            "p-" + id,
			Name:          "Widget " + id,
			StockQuantity: stockQty,
			ReservedStock: reserved,
		},
	}
}

func TestAvailableUnits_Property(t *testing.T) {
	for stockQty := 0; stockQty <= 12; stockQty++ {
		for reserved := 0; reserved <= 12; reserved++ {
			for qty := 1; qty <= 12; qty++ {
				want := stockQty - reserved
				if want < 0 {
					want = 0
				}

				s := Classify(newItem("a", qty, stockQty, reserved))

				require.Equal(t, want, s.AvailableUnits)
				require.Equal(t, want == 0, s.OutOfStock)
				require.Equal(t, qty > want, s.ExceedsStock)
				require.Equal(t, want > 0 && want < qty, s.LowStock)
				if s.LowStock {
					require.True(t, s.ExceedsStock, "low stock implies exceeds stock")
				}
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		item cart.Item
		want Status
	}{
		{
			name: "plenty of stock",
			item: newItem("a", 2, 10, 3),
			want: Status{AvailableUnits: 7},
		},
		{
			name: "exactly the available units",
			item: newItem("a", 7, 10, 3),
			want: Status{AvailableUnits: 7},
		},
		{
			name: "reserved covers all stock",
			item: newItem("a", 1, 5, 5),
			want: Status{AvailableUnits: 0, OutOfStock: true, ExceedsStock: true},
		},
		{
			name: "reserved exceeds stock floors at zero",
			item: newItem("a", 1, 2, 9),
			want: Status{AvailableUnits: 0, OutOfStock: true, ExceedsStock: true},
		},
		{
			name: "quantity above available is low and exceeds",
			item: newItem("a", 4, 3, 0),
			want: Status{AvailableUnits: 3, ExceedsStock: true, LowStock: true},
		},
		{
			name: "missing product snapshot is out of stock",
			item: cart.Item{ID: "x", ProductID: "gone", Quantity: 1},
			want: Status{AvailableUnits: 0, OutOfStock: true, ExceedsStock: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.item))
		})
	}
}

func TestClassifyAll_Blocking(t *testing.T) {
	t.Run("all fine", func(t *testing.T) {
		r := ClassifyAll([]cart.Item{newItem("a", 1, 5, 0), newItem("b", 2, 5, 1)})
		assert.False(t, r.HasBlockingIssue)
		assert.Empty(t, r.Issues())
		assert.True(t, r.PerItem["a"].OK())
	})

	t.Run("one line exceeds stock", func(t *testing.T) {
		r := ClassifyAll([]cart.Item{newItem("a", 1, 5, 0), newItem("b", 6, 5, 0)})
		assert.True(t, r.HasBlockingIssue)

		issues := r.Issues()
		require.Len(t, issues, 1)
		assert.Equal(t, "b", issues[0].ItemID)
		assert.Equal(t, "only 5 of Widget b available", issues[0].Message)
	})

	t.Run("one line out of stock", func(t *testing.T) {
		r := ClassifyAll([]cart.Item{newItem("a", 1, 0, 0)})
		assert.True(t, r.HasBlockingIssue)

		issues := r.Issues()
		require.Len(t, issues, 1)
		assert.Equal(t, "Widget a is out of stock", issues[0].Message)
	})

	t.Run("empty cart has no blocking issue", func(t *testing.T) {
		r := ClassifyAll(nil)
		assert.False(t, r.HasBlockingIssue)
		assert.Empty(t, r.PerItem)
	})
}

func TestClassifyAll_Idempotent(t *testing.T) {
	items := []cart.Item{
		newItem("a", 1, 5, 0),
		newItem("b", 6, 5, 0),
		{ID: "c", ProductID: "gone", Quantity: 2},
	}

	first := ClassifyAll(items)
	second := ClassifyAll(items)

	assert.Equal(t, first.PerItem, second.PerItem)
	assert.Equal(t, first.HasBlockingIssue, second.HasBlockingIssue)
	assert.Equal(t, first.Issues(), second.Issues())
}
