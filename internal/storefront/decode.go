package storefront

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

type envelope struct {
	Success bool
	Data    jx.Raw
	Message string
}

func decodeEnvelope(body []byte) (envelope, error) {
	var (
		env        envelope
		hasSuccess bool
	)
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "success":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "success")
			}
			env.Success = v
			hasSuccess = true
		case "data":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "data")
			}
			env.Data = append(jx.Raw(nil), raw...)
		case "message":
			v, err := decodeString(d)
			if err != nil {
				return errors.Wrap(err, "message")
			}
			env.Message = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return envelope{}, errors.Wrap(err, "decode envelope")
	}
	if !hasSuccess {
		return envelope{}, errors.New("envelope has no success field")
	}
	return env, nil
}

// isNull reports whether raw is absent or a JSON null.
func isNull(raw jx.Raw) bool {
	if len(raw) == 0 {
		return true
	}
	return jx.DecodeBytes(raw).Next() == jx.Null
}

// decodeString reads a string, treating null as empty and numbers as their
// literal text.
func decodeString(d *jx.Decoder) (string, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s, want string", tt)
	}
}

// decodeDecimal accepts 12.5, "12.5" and null.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := decodeString(d)
	if err != nil {
		return decimal.Zero, err
	}
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse decimal %q", s)
	}
	return v, nil
}

// decodeInt accepts 3, 3.0, "3" and null. Fractions such as 2.5 are an
// error, not truncated.
func decodeInt(d *jx.Decoder) (int, error) {
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, errors.Errorf("%s is not a whole number", v)
	}
	return int(v.IntPart()), nil
}

func decodeBool(d *jx.Decoder) (bool, error) {
	switch tt := d.Next(); tt {
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return false, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		return strconv.ParseBool(s)
	default:
		return false, errors.Errorf("unexpected %s, want bool", tt)
	}
}
