package storefront

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

var _ order.Placer = (*Client)(nil)

const opPlaceOrder = "place order"

// PlaceOrder sends the order-creation request. The idempotency key, when
// set, is passed in the Idempotency-Key header.
func (c *Client) PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Confirmation, error) {
	const op = opPlaceOrder

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("addressId", func(e *jx.Encoder) { e.Str(req.AddressID) })
		e.Field("customerNotes", func(e *jx.Encoder) { e.Str(req.CustomerNotes) })
	})

	var header http.Header
	if req.IdempotencyKey != "" {
		header = http.Header{}
		header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	data, err := c.do(ctx, op, http.MethodPost, "/orders", e.Bytes(), header)
	if err != nil {
		return nil, err
	}
	conf, err := decodeConfirmation(data)
	if err != nil {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Err: err}
	}
	return conf, nil
}

func decodeConfirmation(raw jx.Raw) (*order.Confirmation, error) {
	if isNull(raw) {
		return nil, errors.New("order payload is empty")
	}
	var conf order.Confirmation
	d := jx.DecodeBytes(raw)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "orderNumber":
			conf.OrderNumber, err = decodeString(d)
		case "id", "_id":
			conf.OrderID, err = decodeString(d)
		case "status":
			conf.Status, err = decodeString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if conf.OrderNumber == "" {
		return nil, errors.New("order payload has no orderNumber")
	}
	return &conf, nil
}
