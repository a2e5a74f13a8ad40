package provenance_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

func sampleProduct(t *testing.T) (provenance.Product, []provenance.CustodyEvent) {
	t.Helper()
	mfgKr, mfg := newTestIdentity(t)
	_, retailer := newTestIdentity(t)

	p := provenance.Product{
		ID:               7,
		Serial:           "S-007",
		Descriptor:       testDescriptor,
		ManufacturerName: "Rolex SA",
		Manufacturer:     mfg,
		AllowedRetailers: []provenance.Address{retailer},
	}
	first := provenance.CustodyEvent{
		Kind:     provenance.KindManufactured,
		Time:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Location: "Geneva",
		Entity:   "Rolex SA",
		Actor:    mfg,
	}
	first.Signature, _ = mfgKr.Sign(provenance.ManufacturerPayload(p.Serial, p.Descriptor), mfg)
	return p, []provenance.CustodyEvent{first}
}

func TestBundleRoundTrip(t *testing.T) {
	p, history := sampleProduct(t)

	encoded := provenance.Encode(p, history)
	raw, err := encoded.Bytes()
	require.NoError(t, err)

	decoded, err := provenance.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, encoded, decoded, "decode(encode(x)) must reproduce the logical bundle")

	id, err := decoded.ProductID()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, history[0].Signature, decoded.MfgSig)
	assert.Equal(t, string(p.AllowedRetailers[0].Normalized()), decoded.IntendedRetailer)
}

func TestBundleRoundTripIgnoresWhitespace(t *testing.T) {
	p, history := sampleProduct(t)
	raw, err := provenance.Encode(p, history).Bytes()
	require.NoError(t, err)

	var pretty any
	require.NoError(t, json.Unmarshal(raw, &pretty))
	indented, err := json.MarshalIndent(pretty, "", "  ")
	require.NoError(t, err)

	a, err := provenance.Decode(raw)
	require.NoError(t, err)
	b, err := provenance.Decode(indented)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeRejections(t *testing.T) {
	p, history := sampleProduct(t)
	valid := provenance.Encode(p, history)

	mutate := func(fn func(*provenance.Bundle)) []byte {
		b := valid
		b.Lifecycle = append([]provenance.BundleEvent(nil), valid.Lifecycle...)
		fn(&b)
		raw, err := b.Bytes()
		require.NoError(t, err)
		return raw
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("not a bundle")},
		{"empty object", []byte("{}")},
		{"unknown field", []byte(`{"v":"v1","id":"7","surprise":true}`)},
		{"unknown schema version", mutate(func(b *provenance.Bundle) { b.V = "v2" })},
		{"legacy unversioned shape", mutate(func(b *provenance.Bundle) { b.V = "" })},
		{"zero id", mutate(func(b *provenance.Bundle) { b.ID = "0" })},
		{"negative id", mutate(func(b *provenance.Bundle) { b.ID = "-4" })},
		{"non-integral id", mutate(func(b *provenance.Bundle) { b.ID = "7.5" })},
		{"missing serial", mutate(func(b *provenance.Bundle) { b.Details.Serial = "" })},
		{"missing manufacturer signature", mutate(func(b *provenance.Bundle) { b.MfgSig = "" })},
		{"empty lifecycle", mutate(func(b *provenance.Bundle) { b.Lifecycle = nil })},
		{"first entry not manufactured", mutate(func(b *provenance.Bundle) { b.Lifecycle[0].Type = "RETAIL_RECEIVED" })},
		{"garbage timestamp", mutate(func(b *provenance.Bundle) { b.Lifecycle[0].Time = "last tuesday" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := provenance.Decode(tc.raw)
			assert.ErrorIs(t, err, provenance.ErrMalformedBundle)
		})
	}
}

func TestBundleEventsHint(t *testing.T) {
	p, history := sampleProduct(t)
	decoded, err := provenance.Decode(mustBytes(t, provenance.Encode(p, history)))
	require.NoError(t, err)

	events := decoded.Events()
	require.Len(t, events, 1)
	assert.Equal(t, provenance.KindManufactured, events[0].Kind)
	assert.Equal(t, history[0].Time.UTC(), events[0].Time)
	assert.True(t, events[0].Actor.Equal(p.Manufacturer))
}

func mustBytes(t *testing.T, b provenance.Bundle) []byte {
	t.Helper()
	raw, err := b.Bytes()
	require.NoError(t, err)
	return raw
}
