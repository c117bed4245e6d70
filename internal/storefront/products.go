package storefront

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Product is a catalog entry with its current stock.
type Product struct {
	cart.ProductSnapshot
	Price decimal.Decimal
}

// FetchProduct returns a single product with live stock figures.
func (c *Client) FetchProduct(ctx context.Context, id string) (*Product, error) {
	const op = "fetch product"
	data, err := c.do(ctx, op, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Err: errors.New("product payload is empty")}
	}
	p, err := decodeProduct(jx.DecodeBytes(data))
	if err != nil {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Err: err}
	}
	return &p, nil
}

func decodeProduct(d *jx.Decoder) (Product, error) {
	var p Product
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "_id":
			p.ID, err = decodeString(d)
		case "name":
			p.Name, err = decodeString(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stockQuantity":
			p.StockQuantity, err = decodeInt(d)
		case "reservedStock":
			p.ReservedStock, err = decodeInt(d)
		case "isImported":
			p.IsImported, err = decodeBool(d)
		case "packetSize":
			p.PacketSize, err = decodeString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return Product{}, errors.Wrap(err, "decode product")
	}
	return p, nil
}
