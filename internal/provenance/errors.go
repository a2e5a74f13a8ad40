package provenance

import "errors"

// Sentinel errors for every distinct failure mode of the engine.
//
// Callers branch on these with errors.Is; each one implies a different
// user-facing outcome, so they are never collapsed into a generic
// "invalid code" error:
//
//   - ErrMalformedBundle and ErrProductNotFound / ErrSignatureInvalid route
//     to a counterfeit verdict (logged distinctly).
//   - ErrUnauthorizedRetailer and ErrAlreadySold are policy rejections, not
//     counterfeits.
//   - ErrLedgerUnavailable is transient: reads may be retried, writes must
//     re-check ledger state before any retry.
//   - ErrLedgerRejected is the ledger's authoritative denial of a write and
//     is surfaced as-is, never retried automatically.
var (
	ErrMalformedBundle      = errors.New("provenance: malformed bundle")
	ErrProductNotFound      = errors.New("provenance: product not found")
	ErrSignatureInvalid     = errors.New("provenance: signature invalid")
	ErrUnauthorizedRetailer = errors.New("provenance: retailer not authorized")
	ErrAlreadySold          = errors.New("provenance: product already sold")
	ErrLedgerUnavailable    = errors.New("provenance: ledger unavailable")
	ErrLedgerRejected       = errors.New("provenance: ledger rejected write")
)

// IsCounterfeit reports whether err implies the scanned product should be
// presented as fake. Policy rejections (authorization, already-sold) are
// deliberately excluded.
func IsCounterfeit(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrProductNotFound)
}

// IsTransient reports whether err is worth retrying for a read-only
// operation. Writes must never be retried on this signal alone.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}
