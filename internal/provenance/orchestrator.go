package provenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shashiranjanraj/veritas/pkg/metrics"
)

// Verdict classifies a scanned bundle.
type Verdict string

const (
	VerdictAuthentic            Verdict = "AUTHENTIC"
	VerdictTampered             Verdict = "TAMPERED"
	VerdictUnauthorizedRetailer Verdict = "UNAUTHORIZED_RETAILER"
	VerdictNotFound             Verdict = "NOT_FOUND"
	VerdictMalformed            Verdict = "MALFORMED"
)

// Role is the declared intent of whoever scanned the code.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleRetailer Role = "retailer" // attempting to receive inventory
)

// Caller is the explicit per-call identity of the scanning party. Nothing
// in the engine keeps an ambient "connected wallet"; every operation takes
// the caller as a parameter.
type Caller struct {
	Address Address
	Role    Role
}

// Result is the orchestrator's answer: the classification, the product's
// state-machine position and what the caller may do next. Product and
// History are the authoritative ledger values, included for display so
// callers never render the untrusted bundle copy.
type Result struct {
	Verdict    Verdict
	State      State
	NextAction Action
	Product    Product
	History    []CustodyEvent
	Reason     error // taxonomy error behind a non-authentic verdict
}

// Orchestrator is the engine's entry point: it cross-checks a scanned
// bundle against the ledger, runs the signature verifier and the state
// machine, and classifies the scan.
type Orchestrator struct {
	ledger Ledger
	log    *slog.Logger
}

// NewOrchestrator wires the orchestrator to its ledger gateway.
func NewOrchestrator(l Ledger, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{ledger: l, log: log}
}

// Classify runs the full verification algorithm over a raw scanned bundle.
//
// The returned error is non-nil only for transient ledger unavailability —
// every definite outcome, including the failure modes, is a Result. The
// counterfeit verdicts (tampered, not-found) and the policy rejections are
// logged on distinct levels so the audit trail separates them.
func (o *Orchestrator) Classify(ctx context.Context, raw []byte, caller Caller) (Result, error) {
	bundle, err := Decode(raw)
	if err != nil {
		o.log.Warn("bundle rejected as malformed", "reason", err.Error())
		return Result{Verdict: VerdictMalformed, Reason: err}, nil
	}

	id, _ := bundle.ProductID() // validated by Decode

	product, err := o.ledger.GetProduct(ctx, id)
	switch {
	case errors.Is(err, ErrProductNotFound):
		o.log.Warn("scanned id not on ledger", "product_id", id)
		return Result{Verdict: VerdictNotFound, Reason: err}, nil
	case err != nil:
		return Result{}, fmt.Errorf("provenance: classify: %w", err)
	}

	history, err := o.ledger.GetHistory(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("provenance: classify: %w", err)
	}

	state, err := CurrentState(product, history)
	if err != nil {
		o.log.Error("ledger record violates invariants", "product_id", id, "reason", err.Error())
		return o.tampered(product, history, err), nil
	}

	// The bundle's descriptor snapshot must match the ledger's record —
	// the signature is recomputed from ledger data, so a bundle edited
	// after signing is caught here, not by the verifier.
	if mismatch := descriptorMismatch(bundle, product); mismatch != "" {
		o.log.Warn("bundle diverges from ledger record", "product_id", id, "field", mismatch)
		return o.tampered(product, history, fmt.Errorf("%w: bundle %s does not match ledger", ErrSignatureInvalid, mismatch)), nil
	}

	// Manufacturer signature over the ledger's descriptor and serial,
	// against the ledger-recorded manufacturer address.
	mfgPayload := ManufacturerPayload(product.Serial, product.Descriptor)
	mfgOK := Verify(mfgPayload, bundle.MfgSig, product.Manufacturer)
	metrics.RecordSignatureCheck(mfgOK)
	if !mfgOK {
		o.log.Warn("manufacturer signature failed", "product_id", id, "manufacturer", product.Manufacturer)
		return o.tampered(product, history, fmt.Errorf("%w: manufacturer signature", ErrSignatureInvalid)), nil
	}

	// Retailer signature, when the bundle claims one, against the holder
	// recorded in the ledger's last RETAIL_RECEIVED event.
	if bundle.RetSig != "" {
		holder, ok := lastRetailHolder(history)
		if !ok {
			o.log.Warn("bundle claims retailer signature but ledger has no retail hop", "product_id", id)
			return o.tampered(product, history, fmt.Errorf("%w: retailer signature without ledger hop", ErrSignatureInvalid)), nil
		}
		retPayload := RetailerPayload(product.Serial, product.Descriptor, history[0])
		retOK := Verify(retPayload, bundle.RetSig, holder)
		metrics.RecordSignatureCheck(retOK)
		if !retOK {
			o.log.Warn("retailer signature failed", "product_id", id, "holder", holder)
			return o.tampered(product, history, fmt.Errorf("%w: retailer signature", ErrSignatureInvalid)), nil
		}
	}

	// Authorization is a policy question, decided independently of
	// signature validity and never presented as counterfeiting. The
	// allow-list applies even to a sold product: a sale does not make
	// an unlisted retailer a sanctioned outlet.
	if caller.Role == RoleRetailer {
		addr := caller.Address.Normalized()
		if !addr.Valid() || !product.RetailerAllowed(addr) {
			o.log.Info("retailer not authorized for product", "product_id", id, "caller", caller.Address)
			return Result{
				Verdict: VerdictUnauthorizedRetailer,
				State:   state,
				Product: product,
				History: history,
				Reason:  fmt.Errorf("%w: %s not in allow-list of product %d", ErrUnauthorizedRetailer, caller.Address, product.ID),
			}, nil
		}
	}

	return Result{
		Verdict:    VerdictAuthentic,
		State:      state,
		NextAction: NextAction(product, history, caller.Address),
		Product:    product,
		History:    history,
	}, nil
}

func (o *Orchestrator) tampered(p Product, history []CustodyEvent, reason error) Result {
	return Result{Verdict: VerdictTampered, Product: p, History: history, Reason: reason}
}

func descriptorMismatch(b Bundle, p Product) string {
	switch {
	case b.Details.Serial != p.Serial:
		return "serial"
	case b.Details.Name != p.Descriptor.Name:
		return "name"
	case b.Details.Brand != p.Descriptor.Brand:
		return "brand"
	case b.Details.Description != p.Descriptor.Description:
		return "description"
	case b.Details.ImageURL != p.Descriptor.ImageURL:
		return "imageUrl"
	}
	return ""
}

func lastRetailHolder(history []CustodyEvent) (Address, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == KindRetailReceived {
			return history[i].Actor, true
		}
	}
	return "", false
}
