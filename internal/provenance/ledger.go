package provenance

import (
	"context"
	"fmt"
)

// Ledger is the narrow gateway to the external append-only ledger. The
// engine consumes it and never implements consensus, finality or storage;
// internal/ledger ships a reference implementation for the server and the
// tests.
//
// Reads are cheap and idempotent and may be retried freely. Writes carry an
// explicit caller identity and are authorized ledger-side: the engine also
// guards client-side for fast failure, but the ledger's acceptance or
// rejection is authoritative. A write must never be retried blindly after
// an ambiguous failure — re-read state first to learn whether it landed.
type Ledger interface {
	// GetProduct returns the authoritative record, or ErrProductNotFound.
	GetProduct(ctx context.Context, id uint64) (Product, error)

	// GetHistory returns the ordered custody history. Any existing product
	// has at least the MANUFACTURED entry.
	GetHistory(ctx context.Context, id uint64) ([]CustodyEvent, error)

	// ProductCount returns the highest assigned product id. Used as the
	// fallback when a creation receipt carries no usable event log.
	ProductCount(ctx context.Context) (uint64, error)

	// CreateProduct registers a new product. The ledger assigns the id and
	// reports it through the receipt's event log.
	CreateProduct(ctx context.Context, reg Registration, caller Address) (Receipt, error)

	// AppendCustodyEvent appends a RETAIL_RECEIVED handoff. The ledger
	// rejects unauthorized retailers and sold products (ErrLedgerRejected
	// wrapping the specific reason).
	AppendCustodyEvent(ctx context.Context, id uint64, ev CustodyEvent, caller Address) (Receipt, error)

	// MarkSold terminally flips the sold flag.
	MarkSold(ctx context.Context, id uint64, caller Address) (Receipt, error)
}

// Registration is the creation payload: identity fields plus the initial
// MANUFACTURED custody entry carrying the manufacturer signature.
type Registration struct {
	Serial           string
	Descriptor       Descriptor
	ManufacturerName string
	AllowedRetailers []Address
	Manufactured     CustodyEvent
}

// Receipt acknowledges a committed ledger write.
type Receipt struct {
	TxID string
	Logs []ReceiptLog
}

// ReceiptLog is one event-log entry attached to a receipt.
type ReceiptLog struct {
	Name      string
	ProductID uint64
}

// LogProductCreated is the event-log name carrying the assigned id of a
// newly created product.
const LogProductCreated = "ProductCreated"

// CreatedID extracts the ledger-assigned id from a creation receipt. If the
// receipt carries no usable log it falls back to re-reading the
// authoritative count — never to client-side guessing, which is unreliable
// under concurrent creations.
func CreatedID(ctx context.Context, l Ledger, rcpt Receipt) (uint64, error) {
	for _, lg := range rcpt.Logs {
		if lg.Name == LogProductCreated && lg.ProductID > 0 {
			return lg.ProductID, nil
		}
	}

	id, err := l.ProductCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("provenance: created id fallback: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("provenance: created id fallback: ledger reports no products")
	}
	return id, nil
}
