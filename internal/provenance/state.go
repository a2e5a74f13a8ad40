package provenance

import (
	"errors"
	"fmt"
)

// Phase is the coarse lifecycle position of a product.
type Phase string

const (
	PhaseCreated   Phase = "CREATED"    // only the MANUFACTURED entry exists
	PhaseInTransit Phase = "IN_TRANSIT" // one or more retailer hops recorded
	PhaseSold      Phase = "SOLD"       // terminal
)

// State is the derived state-machine position: the phase plus the number of
// custody events so far. Retailer hops are unbounded — multi-hop
// distribution is legal even though a typical label only ever shows one.
type State struct {
	Phase Phase
	Hops  int
}

func (s State) String() string {
	if s.Phase == PhaseInTransit {
		return fmt.Sprintf("IN_TRANSIT(%d)", s.Hops)
	}
	return string(s.Phase)
}

// Action is the caller's permitted next move, reported alongside a verdict.
type Action string

const (
	ActionReceive  Action = "receive"
	ActionMarkSold Action = "mark_sold"
	ActionViewOnly Action = "view_only"
)

// ErrCorruptHistory marks a ledger record that violates the structural
// invariants every product must satisfy (first event MANUFACTURED and made
// by the manufacturer, later events RETAIL_RECEIVED). A compliant ledger
// never produces this; callers treat it as evidence of tampering.
var ErrCorruptHistory = errors.New("provenance: custody history violates invariants")

// CurrentState derives the state-machine position from the authoritative
// record, validating the history invariants on the way.
func CurrentState(p Product, history []CustodyEvent) (State, error) {
	if len(history) == 0 {
		return State{}, fmt.Errorf("%w: empty history for product %d", ErrCorruptHistory, p.ID)
	}
	if history[0].Kind != KindManufactured {
		return State{}, fmt.Errorf("%w: first event is %s", ErrCorruptHistory, history[0].Kind)
	}
	if !history[0].Actor.Equal(p.Manufacturer) {
		return State{}, fmt.Errorf("%w: first event actor %s is not the manufacturer", ErrCorruptHistory, history[0].Actor)
	}
	for _, ev := range history[1:] {
		if ev.Kind != KindRetailReceived {
			return State{}, fmt.Errorf("%w: unexpected %s after MANUFACTURED", ErrCorruptHistory, ev.Kind)
		}
	}

	st := State{Hops: len(history)}
	switch {
	case p.Sold:
		st.Phase = PhaseSold
	case len(history) > 1:
		st.Phase = PhaseInTransit
	default:
		st.Phase = PhaseCreated
	}
	return st, nil
}

// CheckReceive evaluates the transition guards for a retailer receiving the
// product. Any violated guard yields its specific sentinel; a request never
// degrades to partial success.
func CheckReceive(p Product, caller Address) error {
	if !caller.Valid() {
		return fmt.Errorf("%w: caller address %q", ErrUnauthorizedRetailer, caller)
	}
	if p.Sold {
		return fmt.Errorf("%w: product %d", ErrAlreadySold, p.ID)
	}
	if !p.RetailerAllowed(caller) {
		return fmt.Errorf("%w: %s not in allow-list of product %d", ErrUnauthorizedRetailer, caller, p.ID)
	}
	return nil
}

// CheckSell evaluates the guards for marking the product sold: the product
// must not already be sold and the caller must be the current holder.
func CheckSell(p Product, history []CustodyEvent, caller Address) error {
	if p.Sold {
		return fmt.Errorf("%w: product %d", ErrAlreadySold, p.ID)
	}
	if len(history) == 0 {
		return fmt.Errorf("%w: empty history for product %d", ErrCorruptHistory, p.ID)
	}
	holder := history[len(history)-1].Actor
	if !holder.Equal(caller) {
		return fmt.Errorf("%w: %s is not the current holder of product %d", ErrLedgerRejected, caller, p.ID)
	}
	return nil
}

// VerifyEventSignature checks guard (iii) for the event at position i: its
// signature must verify against the actor's address and the canonical
// payload as it stood at that point in history.
func VerifyEventSignature(p Product, history []CustodyEvent, i int) bool {
	if i < 0 || i >= len(history) {
		return false
	}
	ev := history[i]
	if i == 0 {
		return Verify(ManufacturerPayload(p.Serial, p.Descriptor), ev.Signature, ev.Actor)
	}
	return Verify(RetailerPayload(p.Serial, p.Descriptor, history[0]), ev.Signature, ev.Actor)
}

// NextAction reports what the caller may do next given the current record.
func NextAction(p Product, history []CustodyEvent, caller Address) Action {
	if p.Sold || len(history) == 0 {
		return ActionViewOnly
	}
	holder := history[len(history)-1].Actor
	if holder.Equal(caller) {
		return ActionMarkSold
	}
	if p.RetailerAllowed(caller) {
		return ActionReceive
	}
	return ActionViewOnly
}
