package storefront

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var _ cart.Backend = (*Client)(nil)

// FetchCart returns the current cart snapshot.
func (c *Client) FetchCart(ctx context.Context) (cart.Cart, error) {
	return c.cartCall(ctx, "fetch cart", http.MethodGet, "/cart", nil)
}

// AddItem adds quantity units of a product.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int) (cart.Cart, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(productID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(quantity) })
	})
	return c.cartCall(ctx, "add item", http.MethodPost, "/cart/items", e.Bytes())
}

// UpdateItem sets the quantity of a cart line.
func (c *Client) UpdateItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("quantity", func(e *jx.Encoder) { e.Int(quantity) })
	})
	return c.cartCall(ctx, "update item", http.MethodPut, "/cart/items/"+url.PathEscape(itemID), e.Bytes())
}

// RemoveItem deletes a cart line.
func (c *Client) RemoveItem(ctx context.Context, itemID string) (cart.Cart, error) {
	return c.cartCall(ctx, "remove item", http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil)
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) (cart.Cart, error) {
	return c.cartCall(ctx, "clear cart", http.MethodDelete, "/cart", nil)
}

func (c *Client) cartCall(ctx context.Context, op, method, path string, body []byte) (cart.Cart, error) {
	data, err := c.do(ctx, op, method, path, body, nil)
	if err != nil {
		return cart.Cart{}, err
	}
	ct, err := decodeCart(data)
	if err != nil {
		return cart.Cart{}, &TransportError{Op: op, Status: http.StatusOK, Err: err}
	}
	return ct, nil
}

// decodeCart decodes a cart payload. Subtotal and totalItems are derived
// from the items when the server leaves them out.
func decodeCart(raw jx.Raw) (cart.Cart, error) {
	var ct cart.Cart
	if isNull(raw) {
		ct.Recalculate()
		return ct, nil
	}

	var hasSubtotal, hasTotal bool
	d := jx.DecodeBytes(raw)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				ct.Items = append(ct.Items, it)
				return nil
			})
		case "subtotal":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "subtotal")
			}
			ct.Subtotal = v
			hasSubtotal = true
		case "totalItems":
			v, err := decodeInt(d)
			if err != nil {
				return errors.Wrap(err, "totalItems")
			}
			ct.TotalItems = v
			hasTotal = true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return cart.Cart{}, errors.Wrap(err, "decode cart")
	}

	if !hasSubtotal || !hasTotal {
		ct.Recalculate()
	}
	return ct, nil
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "_id", "itemId":
			it.ID, err = decodeString(d)
		case "productId":
			it.ProductID, err = decodeString(d)
		case "quantity":
			it.Quantity, err = decodeInt(d)
		case "priceAtAdd":
			it.PriceAtAdd, err = decodeDecimal(d)
		case "product":
			switch d.Next() {
			case jx.Object:
				p, perr := decodeProduct(d)
				if perr != nil {
					return perr
				}
				it.Product = &p.ProductSnapshot
			case jx.Null:
				return d.Null()
			default:
				// Some responses carry only the product reference.
				it.ProductID, err = decodeString(d)
			}
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return cart.Item{}, errors.Wrap(err, "decode item")
	}
	if it.ProductID == "" && it.Product != nil {
		it.ProductID = it.Product.ID
	}
	return it, nil
}
