package provenance

import (
	"encoding/json"
	"time"
)

// SchemaVersion tags both the canonical signing payloads and the transport
// bundle. It is part of the signed bytes, so a bundle re-encoded under a
// different schema can never verify against a signature made under this one.
const SchemaVersion = "v1"

// The canonical payloads are fixed-schema JSON with field order pinned by
// struct declaration, not by whatever order a caller assembled a map in.
// Manufacturer-side and verifier-side encodings must be byte-identical or
// verification fails spuriously; everything that could drift (field set,
// field names, timestamp format) is nailed down here and only here.
//
// The manufacturer signs {v, serial, name, brand, description, imageUrl} —
// never the mutable history, and never location/date.

type manufacturerPayload struct {
	V           string `json:"v"`
	Serial      string `json:"serial"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// retailerPayload is what a receiving retailer signs: the manufacturer
// payload plus the MANUFACTURED custody entry, i.e. "I received exactly
// this manufacturer-attested product".
type retailerPayload struct {
	V            string         `json:"v"`
	Serial       string         `json:"serial"`
	Name         string         `json:"name"`
	Brand        string         `json:"brand"`
	Description  string         `json:"description"`
	ImageURL     string         `json:"imageUrl"`
	Manufactured canonicalEvent `json:"manufactured"`
}

type canonicalEvent struct {
	Type     string `json:"type"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Entity   string `json:"entity"`
	Address  string `json:"address"`
}

// CanonicalTime normalizes a timestamp to the single format used inside
// signed payloads and bundles: RFC 3339, UTC, second precision.
func CanonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseCanonicalTime parses a timestamp in the canonical format. It also
// accepts RFC 3339 with sub-second precision since signer clocks emit that;
// the value is re-normalized before it ever reaches a signed payload.
func ParseCanonicalTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Second), nil
}

func canonicalizeEvent(ev CustodyEvent) canonicalEvent {
	return canonicalEvent{
		Type:     string(ev.Kind),
		Time:     CanonicalTime(ev.Time),
		Location: ev.Location,
		Entity:   ev.Entity,
		Address:  string(ev.Actor.Normalized()),
	}
}

// ManufacturerPayload builds the canonical bytes the manufacturer signs for
// a product with the given serial and descriptor.
func ManufacturerPayload(serial string, d Descriptor) []byte {
	b, _ := json.Marshal(manufacturerPayload{
		V:           SchemaVersion,
		Serial:      serial,
		Name:        d.Name,
		Brand:       d.Brand,
		Description: d.Description,
		ImageURL:    d.ImageURL,
	})
	return b
}

// RetailerPayload builds the canonical bytes a retailer signs on reception:
// the manufacturer-attested identity plus the MANUFACTURED custody entry.
func RetailerPayload(serial string, d Descriptor, manufactured CustodyEvent) []byte {
	b, _ := json.Marshal(retailerPayload{
		V:            SchemaVersion,
		Serial:       serial,
		Name:         d.Name,
		Brand:        d.Brand,
		Description:  d.Description,
		ImageURL:     d.ImageURL,
		Manufactured: canonicalizeEvent(manufactured),
	})
	return b
}
