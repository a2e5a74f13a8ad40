package provenance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

func mfgEvent(actor provenance.Address) provenance.CustodyEvent {
	return provenance.CustodyEvent{
		Kind:     provenance.KindManufactured,
		Time:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Location: "Geneva",
		Entity:   "Rolex SA",
		Actor:    actor,
	}
}

func retailEvent(actor provenance.Address) provenance.CustodyEvent {
	return provenance.CustodyEvent{
		Kind:     provenance.KindRetailReceived,
		Time:     time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		Location: "Paris",
		Entity:   "Marie Shop",
		Actor:    actor,
	}
}

func TestCurrentState(t *testing.T) {
	_, mfg := newTestIdentity(t)
	_, ret := newTestIdentity(t)

	p := provenance.Product{ID: 1, Serial: "S-001", Manufacturer: mfg}

	st, err := provenance.CurrentState(p, []provenance.CustodyEvent{mfgEvent(mfg)})
	if err != nil {
		t.Fatalf("created state: %v", err)
	}
	if st.Phase != provenance.PhaseCreated || st.Hops != 1 {
		t.Errorf("want CREATED with 1 hop, got %s", st)
	}

	st, err = provenance.CurrentState(p, []provenance.CustodyEvent{mfgEvent(mfg), retailEvent(ret)})
	if err != nil {
		t.Fatalf("in-transit state: %v", err)
	}
	if st.Phase != provenance.PhaseInTransit || st.Hops != 2 {
		t.Errorf("want IN_TRANSIT(2), got %s", st)
	}
	if st.String() != "IN_TRANSIT(2)" {
		t.Errorf("unexpected render: %s", st)
	}

	p.Sold = true
	st, err = provenance.CurrentState(p, []provenance.CustodyEvent{mfgEvent(mfg), retailEvent(ret)})
	if err != nil {
		t.Fatalf("sold state: %v", err)
	}
	if st.Phase != provenance.PhaseSold {
		t.Errorf("want SOLD, got %s", st)
	}
}

func TestCurrentStateUnboundedHops(t *testing.T) {
	_, mfg := newTestIdentity(t)
	p := provenance.Product{ID: 1, Manufacturer: mfg}

	history := []provenance.CustodyEvent{mfgEvent(mfg)}
	for i := 0; i < 6; i++ {
		_, hop := newTestIdentity(t)
		history = append(history, retailEvent(hop))
	}

	st, err := provenance.CurrentState(p, history)
	if err != nil {
		t.Fatalf("multi-hop state: %v", err)
	}
	if st.Phase != provenance.PhaseInTransit || st.Hops != 7 {
		t.Errorf("retailer count must be unbounded, got %s", st)
	}
}

func TestCurrentStateRejectsCorruptHistory(t *testing.T) {
	_, mfg := newTestIdentity(t)
	_, ret := newTestIdentity(t)
	p := provenance.Product{ID: 1, Manufacturer: mfg}

	cases := []struct {
		name    string
		history []provenance.CustodyEvent
	}{
		{"empty history", nil},
		{"first event not manufactured", []provenance.CustodyEvent{retailEvent(ret)}},
		{"first actor not manufacturer", []provenance.CustodyEvent{mfgEvent(ret)}},
		{"second manufactured entry", []provenance.CustodyEvent{mfgEvent(mfg), mfgEvent(mfg)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := provenance.CurrentState(p, tc.history)
			if !errors.Is(err, provenance.ErrCorruptHistory) {
				t.Errorf("want ErrCorruptHistory, got %v", err)
			}
		})
	}
}

func TestCheckReceiveGuards(t *testing.T) {
	_, mfg := newTestIdentity(t)
	_, allowed := newTestIdentity(t)
	_, stranger := newTestIdentity(t)

	p := provenance.Product{
		ID:               1,
		Manufacturer:     mfg,
		AllowedRetailers: []provenance.Address{allowed},
	}

	if err := provenance.CheckReceive(p, allowed); err != nil {
		t.Errorf("allowed retailer rejected: %v", err)
	}
	if err := provenance.CheckReceive(p, stranger); !errors.Is(err, provenance.ErrUnauthorizedRetailer) {
		t.Errorf("want ErrUnauthorizedRetailer, got %v", err)
	}
	if err := provenance.CheckReceive(p, "junk-address"); !errors.Is(err, provenance.ErrUnauthorizedRetailer) {
		t.Errorf("want ErrUnauthorizedRetailer for invalid address, got %v", err)
	}

	p.Sold = true
	if err := provenance.CheckReceive(p, allowed); !errors.Is(err, provenance.ErrAlreadySold) {
		t.Errorf("want ErrAlreadySold, got %v", err)
	}
}

func TestCheckSellGuards(t *testing.T) {
	_, mfg := newTestIdentity(t)
	_, holder := newTestIdentity(t)
	_, stranger := newTestIdentity(t)

	p := provenance.Product{ID: 1, Manufacturer: mfg}
	history := []provenance.CustodyEvent{mfgEvent(mfg), retailEvent(holder)}

	if err := provenance.CheckSell(p, history, holder); err != nil {
		t.Errorf("current holder rejected: %v", err)
	}
	if err := provenance.CheckSell(p, history, stranger); !errors.Is(err, provenance.ErrLedgerRejected) {
		t.Errorf("want ErrLedgerRejected for non-holder, got %v", err)
	}

	p.Sold = true
	if err := provenance.CheckSell(p, history, holder); !errors.Is(err, provenance.ErrAlreadySold) {
		t.Errorf("want ErrAlreadySold, got %v", err)
	}
}

func TestVerifyEventSignature(t *testing.T) {
	mfgKr, mfg := newTestIdentity(t)
	retKr, ret := newTestIdentity(t)

	p := provenance.Product{
		ID:           1,
		Serial:       "S-001",
		Descriptor:   testDescriptor,
		Manufacturer: mfg,
	}

	first := mfgEvent(mfg)
	first.Signature, _ = mfgKr.Sign(provenance.ManufacturerPayload(p.Serial, p.Descriptor), mfg)

	second := retailEvent(ret)
	second.Signature, _ = retKr.Sign(provenance.RetailerPayload(p.Serial, p.Descriptor, first), ret)

	history := []provenance.CustodyEvent{first, second}

	if !provenance.VerifyEventSignature(p, history, 0) {
		t.Error("manufactured event signature should verify")
	}
	if !provenance.VerifyEventSignature(p, history, 1) {
		t.Error("retail event signature should verify")
	}
	if provenance.VerifyEventSignature(p, history, 2) {
		t.Error("out-of-range index should not verify")
	}

	history[1].Signature = history[0].Signature // wrong payload, wrong key
	if provenance.VerifyEventSignature(p, history, 1) {
		t.Error("swapped signature should not verify")
	}
}

func TestNextAction(t *testing.T) {
	_, mfg := newTestIdentity(t)
	_, allowed := newTestIdentity(t)
	_, consumer := newTestIdentity(t)

	p := provenance.Product{ID: 1, Manufacturer: mfg, AllowedRetailers: []provenance.Address{allowed}}
	history := []provenance.CustodyEvent{mfgEvent(mfg)}

	if got := provenance.NextAction(p, history, allowed); got != provenance.ActionReceive {
		t.Errorf("allowed retailer: want receive, got %s", got)
	}
	if got := provenance.NextAction(p, history, mfg); got != provenance.ActionMarkSold {
		t.Errorf("current holder: want mark_sold, got %s", got)
	}
	if got := provenance.NextAction(p, history, consumer); got != provenance.ActionViewOnly {
		t.Errorf("consumer: want view_only, got %s", got)
	}

	p.Sold = true
	if got := provenance.NextAction(p, history, allowed); got != provenance.ActionViewOnly {
		t.Errorf("sold product: want view_only, got %s", got)
	}
}
