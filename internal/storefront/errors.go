package storefront

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// ErrSessionExpired is returned before any request is sent when the bearer
// token carries an expiry in the past.
var ErrSessionExpired = errors.New("session expired, sign in again")

// RejectedError is a business rejection: the backend answered with
// success=false (or a non-2xx status with a well-formed envelope).
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// Is reports a rejected order placement as order.ErrRejected. Cart and
// address rejections do not match.
func (e *RejectedError) Is(target error) bool {
	return target == order.ErrRejected && e.Op == opPlaceOrder
}

// TransportError covers network failures and responses that could not be
// decoded as an envelope.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message converts err into the text shown to the shopper. Server messages
// are passed through verbatim; transport failures become "failed to <op>".
func Message(err error) string {
	if err == nil {
		return ""
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		if rej.Message != "" {
			return rej.Message
		}
		return "failed to " + rej.Op
	}
	var te *TransportError
	if errors.As(err, &te) {
		return "failed to " + te.Op
	}
	return err.Error()
}
