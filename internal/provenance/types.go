// Package provenance implements the product provenance verification engine.
//
// It builds the exact byte payloads each party signs (canonical.go), checks
// those signatures against the chain-of-custody addresses recorded on the
// ledger (signature.go), drives the product lifecycle state machine
// (state.go), codecs the portable QR bundle (bundle.go) and classifies a
// scanned bundle as authentic, tampered or unauthorized (orchestrator.go).
//
// The ledger itself is an external, trusted append-only collaborator the
// engine only talks to through the Ledger interface (ledger.go); private
// keys live behind the Signer interface and are never seen here.
package provenance

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Address identifies a signing party: the lowercase hex encoding of an
// ed25519 public key. Addresses recorded on the ledger are the only ones
// trusted during verification — an address embedded in a scanned bundle is
// never authoritative.
type Address string

// AddressFromPublicKey derives the canonical address for a public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(hex.EncodeToString(pub))
}

// PublicKey decodes the address back into its ed25519 public key.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(a.Normalized()))
	if err != nil {
		return nil, fmt.Errorf("provenance: address %q is not hex: %w", a, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("provenance: address %q has %d bytes, want %d", a, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Normalized lowercases the address so comparisons are case-insensitive,
// matching how wallet UIs re-checksum addresses freely.
func (a Address) Normalized() Address {
	return Address(strings.ToLower(strings.TrimSpace(string(a))))
}

// Equal compares two addresses ignoring case.
func (a Address) Equal(b Address) bool {
	return a.Normalized() == b.Normalized()
}

// Valid reports whether the address decodes to a public key.
func (a Address) Valid() bool {
	_, err := a.PublicKey()
	return err == nil
}

// Descriptor is the immutable display data of a product, set once by the
// manufacturer and covered by the manufacturer signature.
type Descriptor struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// EventKind discriminates custody events. The first event of any product is
// always KindManufactured; every later one is KindRetailReceived.
type EventKind string

const (
	KindManufactured   EventKind = "MANUFACTURED"
	KindRetailReceived EventKind = "RETAIL_RECEIVED"
)

// CustodyEvent is one recorded handoff in a product's append-only history.
type CustodyEvent struct {
	Kind      EventKind `json:"type"`
	Time      time.Time `json:"time"`
	Location  string    `json:"location"`
	Entity    string    `json:"entity"` // display name of the acting party
	Actor     Address   `json:"address"`
	Signature string    `json:"signature,omitempty"`
}

// Product is the authoritative record stored on the ledger. Identity and
// descriptor are immutable after creation; only the custody history grows
// and the sold flag flips once.
type Product struct {
	ID               uint64
	Serial           string
	Descriptor       Descriptor
	ManufacturerName string
	Manufacturer     Address
	AllowedRetailers []Address
	Sold             bool
}

// RetailerAllowed reports whether a is in the product's retailer allow-list.
func (p Product) RetailerAllowed(a Address) bool {
	for _, r := range p.AllowedRetailers {
		if r.Equal(a) {
			return true
		}
	}
	return false
}
