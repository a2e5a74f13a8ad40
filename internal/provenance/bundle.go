package provenance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Bundle is the portable artifact carried in a printed/scanned code. It is
// a claim, not a source of truth: everything in it is cross-checked against
// the ledger before anything is trusted. Field names and nesting are fixed
// by SchemaVersion; earlier revisions of the system mixed several bundle
// shapes and that mixing was the dominant source of false "tampered"
// verdicts, so an unknown version is rejected outright instead of guessed
// at.
type Bundle struct {
	V                string        `json:"v"`
	ID               string        `json:"id"` // string-encoded positive integer
	Details          BundleDetails `json:"details"`
	Lifecycle        []BundleEvent `json:"lifecycle"`
	MfgSig           string        `json:"mfgSig"`
	RetSig           string        `json:"retSig,omitempty"`
	IntendedRetailer string        `json:"intendedRetailer,omitempty"`
}

// BundleDetails is the descriptor-and-serial snapshot inside a bundle.
type BundleDetails struct {
	Serial      string `json:"serial"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// BundleEvent is one lifecycle entry in transport form.
type BundleEvent struct {
	Type     string `json:"type"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Entity   string `json:"entity"`
	Address  string `json:"address"`
}

// Encode builds the v1 bundle for a product and its custody history.
func Encode(p Product, history []CustodyEvent) Bundle {
	b := Bundle{
		V:  SchemaVersion,
		ID: strconv.FormatUint(p.ID, 10),
		Details: BundleDetails{
			Serial:      p.Serial,
			Name:        p.Descriptor.Name,
			Brand:       p.Descriptor.Brand,
			Description: p.Descriptor.Description,
			ImageURL:    p.Descriptor.ImageURL,
		},
	}

	for _, ev := range history {
		b.Lifecycle = append(b.Lifecycle, BundleEvent{
			Type:     string(ev.Kind),
			Time:     CanonicalTime(ev.Time),
			Location: ev.Location,
			Entity:   ev.Entity,
			Address:  string(ev.Actor.Normalized()),
		})
		switch ev.Kind {
		case KindManufactured:
			b.MfgSig = ev.Signature
		case KindRetailReceived:
			b.RetSig = ev.Signature
		}
	}

	if len(p.AllowedRetailers) > 0 {
		b.IntendedRetailer = string(p.AllowedRetailers[0].Normalized())
	}
	return b
}

// Bytes renders the bundle as transport JSON.
func (b Bundle) Bytes() ([]byte, error) {
	return json.Marshal(b)
}

// Decode parses and structurally validates a scanned bundle. Every failure
// wraps ErrMalformedBundle; the schema version is checked before anything
// else.
func Decode(raw []byte) (Bundle, error) {
	var b Bundle

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}

	if b.V != SchemaVersion {
		return Bundle{}, fmt.Errorf("%w: unsupported schema version %q", ErrMalformedBundle, b.V)
	}
	if _, err := b.ProductID(); err != nil {
		return Bundle{}, err
	}
	if b.Details.Serial == "" || b.Details.Name == "" {
		return Bundle{}, fmt.Errorf("%w: missing serial or name", ErrMalformedBundle)
	}
	if b.MfgSig == "" {
		return Bundle{}, fmt.Errorf("%w: missing manufacturer signature", ErrMalformedBundle)
	}
	if len(b.Lifecycle) == 0 {
		return Bundle{}, fmt.Errorf("%w: empty lifecycle", ErrMalformedBundle)
	}
	if b.Lifecycle[0].Type != string(KindManufactured) {
		return Bundle{}, fmt.Errorf("%w: first lifecycle entry is %q", ErrMalformedBundle, b.Lifecycle[0].Type)
	}
	for _, ev := range b.Lifecycle {
		if _, err := ParseCanonicalTime(ev.Time); err != nil {
			return Bundle{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedBundle, ev.Time)
		}
	}
	return b, nil
}

// ProductID parses the bundle id, rejecting non-positive and non-integral
// values.
func (b Bundle) ProductID() (uint64, error) {
	id, err := strconv.ParseUint(b.ID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad product id %q", ErrMalformedBundle, b.ID)
	}
	return id, nil
}

// Events converts the untrusted lifecycle entries into custody events. Used
// only as a hint for display; verification always reloads the history from
// the ledger.
func (b Bundle) Events() []CustodyEvent {
	out := make([]CustodyEvent, 0, len(b.Lifecycle))
	for _, ev := range b.Lifecycle {
		t, _ := ParseCanonicalTime(ev.Time)
		out = append(out, CustodyEvent{
			Kind:     EventKind(ev.Type),
			Time:     t,
			Location: ev.Location,
			Entity:   ev.Entity,
			Actor:    Address(ev.Address).Normalized(),
		})
	}
	return out
}
