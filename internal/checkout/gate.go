package checkout

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrGateClosed matches any *GateError.
var ErrGateClosed = errors.New("order cannot be placed yet")

// Blocker is a reason the order cannot be placed. Its value is the message
// shown to the shopper.
type Blocker string

const (
	BlockerAddress   Blocker = "select an address"
	BlockerEmail     Blocker = "enter a contact email"
	BlockerStock     Blocker = "resolve stock issues"
	BlockerEmptyCart Blocker = "your cart is empty"
)

func (b Blocker) String() string {
	return string(b)
}

// GateError is returned by PlaceOrder when the gate is closed. Nothing is
// sent to the server.
type GateError struct {
	Blockers []Blocker
}

func (e *GateError) Error() string {
	msgs := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		msgs[i] = b.String()
	}
	return "cannot place order: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrGateClosed) hold for every GateError.
func (e *GateError) Is(target error) bool {
	return target == ErrGateClosed
}
