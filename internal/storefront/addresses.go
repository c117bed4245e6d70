package storefront

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/address"
)

var _ address.Book = (*Client)(nil)

// ListAddresses returns the shopper's address book.
func (c *Client) ListAddresses(ctx context.Context) ([]address.Address, error) {
	const op = "list addresses"
	data, err := c.do(ctx, op, http.MethodGet, "/addresses", nil, nil)
	if err != nil {
		return nil, err
	}
	addrs, err := decodeAddresses(data)
	if err != nil {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Err: err}
	}
	return addrs, nil
}

func decodeAddresses(raw jx.Raw) ([]address.Address, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []address.Address
	d := jx.DecodeBytes(raw)
	if err := d.Arr(func(d *jx.Decoder) error {
		a, err := decodeAddress(d)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode addresses")
	}
	return out, nil
}

func decodeAddress(d *jx.Decoder) (address.Address, error) {
	var a address.Address
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "_id":
			a.ID, err = decodeString(d)
		case "fullName":
			a.FullName, err = decodeString(d)
		case "street":
			a.Street, err = decodeString(d)
		case "city":
			a.City, err = decodeString(d)
		case "state":
			a.State, err = decodeString(d)
		case "zipCode":
			a.ZipCode, err = decodeString(d)
		case "phone":
			a.Phone, err = decodeString(d)
		case "isDefault":
			a.IsDefault, err = decodeBool(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return address.Address{}, errors.Wrap(err, "decode address")
	}
	return a, nil
}
