package provenance_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/metrics"
)

// memLedger is the in-memory ledger used by the engine tests. It enforces
// the same server-side guards the reference store does, so rejected writes
// behave like the real authoritative ledger.
type memLedger struct {
	mu       sync.Mutex
	products map[uint64]provenance.Product
	history  map[uint64][]provenance.CustodyEvent
	nextID   uint64

	readErr  error // injected transient failure for reads
	dropLogs bool  // simulate receipts with unparseable event logs
}

func newMemLedger() *memLedger {
	return &memLedger{
		products: make(map[uint64]provenance.Product),
		history:  make(map[uint64][]provenance.CustodyEvent),
	}
}

func (m *memLedger) GetProduct(_ context.Context, id uint64) (provenance.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return provenance.Product{}, m.readErr
	}
	p, ok := m.products[id]
	if !ok {
		return provenance.Product{}, provenance.ErrProductNotFound
	}
	return p, nil
}

func (m *memLedger) GetHistory(_ context.Context, id uint64) ([]provenance.CustodyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	h, ok := m.history[id]
	if !ok {
		return nil, provenance.ErrProductNotFound
	}
	return append([]provenance.CustodyEvent(nil), h...), nil
}

func (m *memLedger) ProductCount(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.nextID, nil
}

func (m *memLedger) CreateProduct(_ context.Context, reg provenance.Registration, caller provenance.Address) (provenance.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !reg.Manufactured.Actor.Equal(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: creator is not the manufactured actor", provenance.ErrLedgerRejected)
	}

	m.nextID++
	id := m.nextID
	m.products[id] = provenance.Product{
		ID:               id,
		Serial:           reg.Serial,
		Descriptor:       reg.Descriptor,
		ManufacturerName: reg.ManufacturerName,
		Manufacturer:     caller.Normalized(),
		AllowedRetailers: reg.AllowedRetailers,
	}
	m.history[id] = []provenance.CustodyEvent{reg.Manufactured}

	rcpt := provenance.Receipt{TxID: fmt.Sprintf("tx-%d", id)}
	if !m.dropLogs {
		rcpt.Logs = []provenance.ReceiptLog{{Name: provenance.LogProductCreated, ProductID: id}}
	}
	return rcpt, nil
}

func (m *memLedger) AppendCustodyEvent(_ context.Context, id uint64, ev provenance.CustodyEvent, caller provenance.Address) (provenance.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return provenance.Receipt{}, provenance.ErrProductNotFound
	}
	if p.Sold {
		return provenance.Receipt{}, fmt.Errorf("%w: %w", provenance.ErrLedgerRejected, provenance.ErrAlreadySold)
	}
	if !p.RetailerAllowed(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: %w", provenance.ErrLedgerRejected, provenance.ErrUnauthorizedRetailer)
	}
	if !ev.Actor.Equal(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: event actor is not the caller", provenance.ErrLedgerRejected)
	}

	m.history[id] = append(m.history[id], ev)
	return provenance.Receipt{TxID: fmt.Sprintf("tx-%d-%d", id, len(m.history[id]))}, nil
}

func (m *memLedger) MarkSold(_ context.Context, id uint64, caller provenance.Address) (provenance.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return provenance.Receipt{}, provenance.ErrProductNotFound
	}
	if p.Sold {
		return provenance.Receipt{}, fmt.Errorf("%w: %w", provenance.ErrLedgerRejected, provenance.ErrAlreadySold)
	}
	holder := m.history[id][len(m.history[id])-1].Actor
	if !holder.Equal(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: caller is not the holder", provenance.ErrLedgerRejected)
	}

	p.Sold = true
	m.products[id] = p
	return provenance.Receipt{TxID: fmt.Sprintf("tx-%d-sold", id)}, nil
}

// registerProduct creates a fully signed product on the ledger and returns
// its authoritative record, history and signing keyring.
func registerProduct(t *testing.T, ledger *memLedger, retailers ...provenance.Address) (provenance.Product, []provenance.CustodyEvent, *provenance.Keyring) {
	t.Helper()
	kr, mfg := newTestIdentity(t)

	reg := provenance.Registration{
		Serial:           "S-001",
		Descriptor:       testDescriptor,
		ManufacturerName: "Rolex SA",
		AllowedRetailers: retailers,
		Manufactured: provenance.CustodyEvent{
			Kind:     provenance.KindManufactured,
			Time:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Location: "Geneva",
			Entity:   "Rolex SA",
			Actor:    mfg,
		},
	}
	sig, err := kr.Sign(provenance.ManufacturerPayload(reg.Serial, reg.Descriptor), mfg)
	require.NoError(t, err)
	reg.Manufactured.Signature = sig

	rcpt, err := ledger.CreateProduct(context.Background(), reg, mfg)
	require.NoError(t, err)

	id, err := provenance.CreatedID(context.Background(), ledger, rcpt)
	require.NoError(t, err)

	p, err := ledger.GetProduct(context.Background(), id)
	require.NoError(t, err)
	h, err := ledger.GetHistory(context.Background(), id)
	require.NoError(t, err)
	return p, h, kr
}

func classify(t *testing.T, ledger *memLedger, b provenance.Bundle, caller provenance.Caller) provenance.Result {
	t.Helper()
	raw, err := b.Bytes()
	require.NoError(t, err)
	res, err := provenance.NewOrchestrator(ledger, nil).Classify(context.Background(), raw, caller)
	require.NoError(t, err)
	return res
}

func TestClassifyMalformed(t *testing.T) {
	res, err := provenance.NewOrchestrator(newMemLedger(), nil).
		Classify(context.Background(), []byte("{{{"), provenance.Caller{Role: provenance.RoleConsumer})
	require.NoError(t, err)
	assert.Equal(t, provenance.VerdictMalformed, res.Verdict)
	assert.ErrorIs(t, res.Reason, provenance.ErrMalformedBundle)
}

func TestClassifyNotFound(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)

	bundle := provenance.Encode(p, h)
	bundle.ID = "99" // exists nowhere on the ledger

	res := classify(t, ledger, bundle, provenance.Caller{Role: provenance.RoleConsumer})
	assert.Equal(t, provenance.VerdictNotFound, res.Verdict)
	assert.ErrorIs(t, res.Reason, provenance.ErrProductNotFound)
}

func TestClassifyTamperedDescriptor(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)

	bundle := provenance.Encode(p, h)
	bundle.Details.Brand = "Rollex" // edited after signing

	res := classify(t, ledger, bundle, provenance.Caller{Role: provenance.RoleConsumer})
	assert.Equal(t, provenance.VerdictTampered, res.Verdict)
	assert.ErrorIs(t, res.Reason, provenance.ErrSignatureInvalid)
}

func TestClassifyTamperedSignature(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)

	bundle := provenance.Encode(p, h)
	bundle.MfgSig = bundle.MfgSig[2:] + "ab"

	res := classify(t, ledger, bundle, provenance.Caller{Role: provenance.RoleConsumer})
	assert.Equal(t, provenance.VerdictTampered, res.Verdict)
}

func TestClassifyForgedRetailerSignature(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)

	// The ledger has no retail hop, so any claimed retailer signature is a
	// fabrication regardless of what it decodes to.
	bundle := provenance.Encode(p, h)
	bundle.RetSig = bundle.MfgSig

	res := classify(t, ledger, bundle, provenance.Caller{Role: provenance.RoleConsumer})
	assert.Equal(t, provenance.VerdictTampered, res.Verdict)
}

func TestClassifyUnauthorizedRetailerIndependentOfSignatures(t *testing.T) {
	ledger := newMemLedger()
	_, allowed := newTestIdentity(t)
	_, stranger := newTestIdentity(t)
	p, h, _ := registerProduct(t, ledger, allowed)

	// Signatures are fully valid; authorization fails on its own.
	bundle := provenance.Encode(p, h)
	res := classify(t, ledger, bundle, provenance.Caller{Address: stranger, Role: provenance.RoleRetailer})
	assert.Equal(t, provenance.VerdictUnauthorizedRetailer, res.Verdict)
	assert.ErrorIs(t, res.Reason, provenance.ErrUnauthorizedRetailer)
}

func TestClassifyUnauthorizedRetailerEvenWhenSold(t *testing.T) {
	ledger := newMemLedger()
	_, allowed := newTestIdentity(t)
	_, stranger := newTestIdentity(t)
	p, h, _ := registerProduct(t, ledger, allowed)

	_, err := ledger.MarkSold(context.Background(), p.ID, p.Manufacturer)
	require.NoError(t, err)
	p, err = ledger.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)

	// The sale does not make the stranger a sanctioned outlet.
	bundle := provenance.Encode(p, h)
	res := classify(t, ledger, bundle, provenance.Caller{Address: stranger, Role: provenance.RoleRetailer})
	assert.Equal(t, provenance.VerdictUnauthorizedRetailer, res.Verdict)
	assert.ErrorIs(t, res.Reason, provenance.ErrUnauthorizedRetailer)
	assert.Equal(t, provenance.PhaseSold, res.State.Phase)
}

func TestClassifyCountsSignatureChecks(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)
	valid := testutil.ToFloat64(metrics.SignatureChecks.WithLabelValues("valid"))

	res := classify(t, ledger, provenance.Encode(p, h), provenance.Caller{Role: provenance.RoleConsumer})
	require.Equal(t, provenance.VerdictAuthentic, res.Verdict)

	assert.Equal(t, valid+1, testutil.ToFloat64(metrics.SignatureChecks.WithLabelValues("valid")))
}

func TestClassifyTransientLedgerFailure(t *testing.T) {
	ledger := newMemLedger()
	p, h, _ := registerProduct(t, ledger)
	raw, err := provenance.Encode(p, h).Bytes()
	require.NoError(t, err)

	ledger.readErr = fmt.Errorf("%w: connection refused", provenance.ErrLedgerUnavailable)

	_, err = provenance.NewOrchestrator(ledger, nil).
		Classify(context.Background(), raw, provenance.Caller{Role: provenance.RoleConsumer})
	assert.ErrorIs(t, err, provenance.ErrLedgerUnavailable,
		"transient failures are errors, not verdicts")
}

func TestCreatedIDFallsBackToCount(t *testing.T) {
	ledger := newMemLedger()
	ledger.dropLogs = true

	p, _, _ := registerProduct(t, ledger)
	assert.Equal(t, uint64(1), p.ID, "id recovered from the authoritative count when logs are unusable")
}

func TestCreatedIDFailsClosed(t *testing.T) {
	ledger := newMemLedger()
	_, err := provenance.CreatedID(context.Background(), ledger, provenance.Receipt{TxID: "tx"})
	assert.Error(t, err, "no logs and an empty ledger must not guess an id")
}
