package provenance_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

var testDescriptor = provenance.Descriptor{
	Name:        "Submariner",
	Brand:       "Rolex",
	Description: "Dive watch",
	ImageURL:    "https://img.example/sub.png",
}

func TestManufacturerPayloadDeterministic(t *testing.T) {
	a := provenance.ManufacturerPayload("S-001", testDescriptor)
	b := provenance.ManufacturerPayload("S-001", testDescriptor)
	if !bytes.Equal(a, b) {
		t.Fatalf("payload not deterministic:\n%s\n%s", a, b)
	}
}

func TestManufacturerPayloadExactBytes(t *testing.T) {
	// The byte layout is the contract: if this golden string changes, every
	// signature in the field breaks.
	got := string(provenance.ManufacturerPayload("S-001", testDescriptor))
	want := `{"v":"v1","serial":"S-001","name":"Submariner","brand":"Rolex","description":"Dive watch","imageUrl":"https://img.example/sub.png"}`
	if got != want {
		t.Errorf("canonical payload drifted:\n got %s\nwant %s", got, want)
	}
}

func TestPayloadExcludesMutableFields(t *testing.T) {
	// location/date were inconsistently signed across old revisions; the
	// fixed schema keeps them out of the signed set entirely.
	payload := string(provenance.ManufacturerPayload("S-001", testDescriptor))
	for _, banned := range []string{"location", "date", "time", "lifecycle"} {
		if bytes.Contains([]byte(payload), []byte(`"`+banned+`"`)) {
			t.Errorf("manufacturer payload must not include %q: %s", banned, payload)
		}
	}
}

func TestRetailerPayloadCoversManufacturedEntry(t *testing.T) {
	mfg := provenance.CustodyEvent{
		Kind:     provenance.KindManufactured,
		Time:     time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Location: "Geneva",
		Entity:   "Rolex SA",
		Actor:    provenance.Address("ab"),
	}
	a := provenance.RetailerPayload("S-001", testDescriptor, mfg)

	mfg.Location = "Zurich"
	b := provenance.RetailerPayload("S-001", testDescriptor, mfg)
	if bytes.Equal(a, b) {
		t.Error("retailer payload must change when the manufactured entry changes")
	}
}

func TestCanonicalTimeNormalization(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, 3, 1, 5, 30, 0, 123456789, est)
	utc := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	if got, want := provenance.CanonicalTime(local), provenance.CanonicalTime(utc); got != want {
		t.Errorf("zone/precision must not leak into canonical time: %s vs %s", got, want)
	}
	if got := provenance.CanonicalTime(utc); got != "2026-03-01T10:30:00Z" {
		t.Errorf("unexpected canonical time format: %s", got)
	}
}

func TestParseCanonicalTime(t *testing.T) {
	for _, ok := range []string{"2026-03-01T10:30:00Z", "2026-03-01T10:30:00.999Z", "2026-03-01T05:30:00-05:00"} {
		if _, err := provenance.ParseCanonicalTime(ok); err != nil {
			t.Errorf("ParseCanonicalTime(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "yesterday", "2026-03-01", "01/03/2026 10:30"} {
		if _, err := provenance.ParseCanonicalTime(bad); err == nil {
			t.Errorf("ParseCanonicalTime(%q) should fail", bad)
		}
	}
}

func TestVersionTagInsideSignedBytes(t *testing.T) {
	payload := provenance.ManufacturerPayload("S-001", testDescriptor)
	if !bytes.HasPrefix(payload, []byte(`{"v":"v1"`)) {
		t.Errorf("schema version must lead the signed bytes: %s", payload)
	}
}
