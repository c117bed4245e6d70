package checkout

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Step is a checkout section. Steps track progress only; any section
// already reached can be revisited.
type Step int

const (
	StepContact Step = iota
	StepAddress
	StepShippingMethod
	StepPayment
	StepNotes
	StepSubmit
)

var stepNames = [...]string{
	StepContact:        "contact",
	StepAddress:        "address",
	StepShippingMethod: "shippingMethod",
	StepPayment:        "payment",
	StepNotes:          "notes",
	StepSubmit:         "submit",
}

func (s Step) String() string {
	if s < StepContact || s > StepSubmit {
		return "unknown"
	}
	return stepNames[s]
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepContact && s <= StepSubmit
}

// ParseStep resolves a step by name, case-insensitively.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Step(i), nil
		}
	}
	return 0, errors.Errorf("unknown checkout step %q", name)
}

// State is the in-progress checkout. It lives for one session and is
// discarded after an order is placed.
type State struct {
	Step              Step
	SelectedAddressID string
	ContactEmail      string
	ContactPhone      string
	ShippingMethod    pricing.Method
	PaymentMethod     string
	CustomerNotes     string
}

// NewState returns the state for a fresh checkout.
func NewState() State {
	return State{
		Step:           StepContact,
		ShippingMethod: pricing.MethodStandard,
	}
}
