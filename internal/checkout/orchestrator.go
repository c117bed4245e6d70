// Package checkout drives the checkout sequence: it tracks the shopper's
// progress through the sections, keeps the price breakdown current and
// gates order submission.
package checkout

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

var (
	// ErrUnknownAddress is returned when selecting an id that is not in the
	// loaded address book.
	ErrUnknownAddress = errors.New("address not found in address book")
	// ErrInvalidEmail is returned for a contact email that does not parse.
	ErrInvalidEmail = errors.New("contact email is not valid")
	// ErrStepNotReached is returned when jumping past the next unvisited
	// step.
	ErrStepNotReached = errors.New("checkout step not reached yet")
	// ErrSubmitInFlight is returned when PlaceOrder is called while a
	// previous call is still waiting for the server.
	ErrSubmitInFlight = errors.New("order submission already in progress")
)

type priceKey struct {
	state      string
	subtotal   string
	totalItems int
	method     pricing.Method
}

type intent struct {
	addressID string
	notes     string
	key       string
}

// Orchestrator owns the checkout State. It is safe for concurrent use.
type Orchestrator struct {
	engine    *pricing.Engine
	book      address.Book
	submitter *Submitter

	mu         sync.Mutex
	state      State
	reached    Step
	addresses  []address.Address
	cart       cart.Cart
	report     stock.Report
	breakdown  pricing.Breakdown
	key        priceKey
	priced     bool
	recomputed int
	intent     intent
	submitting bool
}

// New creates an Orchestrator and subscribes it to cart changes.
func New(engine *pricing.Engine, store CartStore, book address.Book, placer order.Placer) *Orchestrator {
	o := &Orchestrator{
		engine:    engine,
		book:      book,
		submitter: NewSubmitter(placer, store),
		state:     NewState(),
	}
	o.setCart(store.Snapshot())
	store.OnChange(o.SetCart)
	return o
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reached returns the furthest step visited.
func (o *Orchestrator) Reached() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reached
}

// GoTo moves to step. Any visited step and the one after the furthest
// reached are allowed.
func (o *Orchestrator) GoTo(step Step) error {
	if !step.Valid() {
		return errors.Errorf("invalid checkout step %d", int(step))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if step > o.reached+1 {
		return errors.Wrapf(ErrStepNotReached, "%s", step)
	}
	o.state.Step = step
	o.visit(step)
	return nil
}

// Next advances to the following step.
func (o *Orchestrator) Next() error {
	o.mu.Lock()
	next := o.state.Step + 1
	o.mu.Unlock()
	if next > StepSubmit {
		return nil
	}
	return o.GoTo(next)
}

func (o *Orchestrator) visit(step Step) {
	if step > o.reached {
		o.reached = step
	}
}

// Addresses returns the loaded address book.
func (o *Orchestrator) Addresses() []address.Address {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]address.Address(nil), o.addresses...)
}

// LoadAddresses refreshes the address book. The default address is
// selected when nothing is selected yet.
func (o *Orchestrator) LoadAddresses(ctx context.Context) error {
	addrs, err := o.book.ListAddresses(ctx)
	if err != nil {
		return errors.Wrap(err, "load addresses")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.addresses = addrs
	if o.state.SelectedAddressID == "" {
		if def, ok := address.Default(addrs); ok {
			o.state.SelectedAddressID = def.ID
		}
	}
	o.recompute()
	return nil
}

// SelectAddress selects an address from the loaded book.
func (o *Orchestrator) SelectAddress(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := address.Find(o.addresses, id); !ok {
		return errors.Wrapf(ErrUnknownAddress, "%q", id)
	}
	o.state.SelectedAddressID = id
	o.visit(StepAddress)
	o.recompute()
	return nil
}

// SelectedAddress returns the selected address if it is in the book.
func (o *Orchestrator) SelectedAddress() (address.Address, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return address.Find(o.addresses, o.state.SelectedAddressID)
}

// SetContact records the contact details. An empty email is accepted here
// and reported by the gate.
func (o *Orchestrator) SetContact(email, phone string) error {
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return errors.Wrapf(ErrInvalidEmail, "%q", email)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.ContactEmail = email
	o.state.ContactPhone = strings.TrimSpace(phone)
	o.visit(StepContact)
	return nil
}

// SetShippingMethod changes the shipping method and reprices.
func (o *Orchestrator) SetShippingMethod(m pricing.Method) error {
	m, err := pricing.ParseMethod(string(m))
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.ShippingMethod = m
	o.visit(StepShippingMethod)
	o.recompute()
	return nil
}

// SetPaymentMethod records the payment selection. No payment is captured.
func (o *Orchestrator) SetPaymentMethod(method string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.PaymentMethod = strings.TrimSpace(method)
	o.visit(StepPayment)
}

// SetNotes records the customer notes sent with the order.
func (o *Orchestrator) SetNotes(notes string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.CustomerNotes = strings.TrimSpace(notes)
	o.visit(StepNotes)
}

// SetCart replaces the cart the checkout works against, reclassifies stock
// and reprices. It is registered as the cart store's change listener.
func (o *Orchestrator) SetCart(c cart.Cart) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setCart(c)
}

func (o *Orchestrator) setCart(c cart.Cart) {
	o.cart = c
	o.report = stock.ClassifyAll(c.Items)
	o.recompute()
}

// Cart returns a copy of the cart the checkout was last told about.
func (o *Orchestrator) Cart() cart.Cart {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cart.Clone()
}

// recompute refreshes the breakdown when the pricing inputs changed.
func (o *Orchestrator) recompute() {
	var state string
	if a, ok := address.Find(o.addresses, o.state.SelectedAddressID); ok {
		state = address.NormalizeState(a.State)
	}
	key := priceKey{
		state:      state,
		subtotal:   o.cart.Subtotal.String(),
		totalItems: o.cart.TotalItems,
		method:     o.state.ShippingMethod,
	}
	if o.priced && key == o.key {
		return
	}
	o.key = key
	o.priced = true
	o.recomputed++
	o.breakdown = o.engine.Breakdown(o.cart.Subtotal, state, o.cart.TotalItems, o.state.ShippingMethod)
}

// Pricing returns the current breakdown at full precision.
func (o *Orchestrator) Pricing() pricing.Breakdown {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.breakdown
}

// Stock returns the stock classification of the current cart.
func (o *Orchestrator) Stock() stock.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}

// Issues lists the stock problems to show next to the cart lines.
func (o *Orchestrator) Issues() []stock.Issue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report.Issues()
}

// Blockers lists every unmet submission precondition, in a fixed order.
func (o *Orchestrator) Blockers() []Blocker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blockers()
}

func (o *Orchestrator) blockers() []Blocker {
	var out []Blocker
	if _, ok := address.Find(o.addresses, o.state.SelectedAddressID); !ok {
		out = append(out, BlockerAddress)
	}
	if o.state.ContactEmail == "" {
		out = append(out, BlockerEmail)
	}
	if o.report.HasBlockingIssue {
		out = append(out, BlockerStock)
	}
	if o.cart.Empty() {
		out = append(out, BlockerEmptyCart)
	}
	return out
}

// CanPlaceOrder reports whether the gate is open.
func (o *Orchestrator) CanPlaceOrder() bool {
	return len(o.Blockers()) == 0
}

// PlaceOrder submits the order when the gate is open. On failure the state
// is left untouched so the shopper can retry; retries of the same intent
// reuse its idempotency key.
func (o *Orchestrator) PlaceOrder(ctx context.Context) (*order.Confirmation, error) {
	o.mu.Lock()
	if blockers := o.blockers(); len(blockers) > 0 {
		o.mu.Unlock()
		return nil, &GateError{Blockers: blockers}
	}
	if o.submitting {
		o.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	o.submitting = true
	req := o.request()
	o.mu.Unlock()

	conf, err := o.submitter.Submit(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false
	if err != nil {
		return nil, err
	}
	o.state = NewState()
	o.reached = StepContact
	o.intent = intent{}
	o.recompute()
	return conf, nil
}

// request builds the order request. The idempotency key changes only when
// the request content does.
func (o *Orchestrator) request() order.PlaceOrderRequest {
	if o.intent.key == "" ||
		o.intent.addressID != o.state.SelectedAddressID ||
		o.intent.notes != o.state.CustomerNotes {
		o.intent = intent{
			addressID: o.state.SelectedAddressID,
			notes:     o.state.CustomerNotes,
			key:       uuid.NewString(),
		}
	}
	return order.PlaceOrderRequest{
		AddressID:      o.intent.addressID,
		CustomerNotes:  o.intent.notes,
		IdempotencyKey: o.intent.key,
	}
}

// Total is a convenience for the rounded order total.
func (o *Orchestrator) Total() decimal.Decimal {
	return o.Pricing().Rounded().Total
}
