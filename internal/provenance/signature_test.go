package provenance_test

import (
	"testing"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

func newTestIdentity(t *testing.T) (*provenance.Keyring, provenance.Address) {
	t.Helper()
	kr := provenance.NewKeyring()
	addr, err := kr.Generate()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return kr, addr
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kr, addr := newTestIdentity(t)

	payload := provenance.ManufacturerPayload("S-001", testDescriptor)
	sig, err := kr.Sign(payload, addr)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !provenance.Verify(payload, sig, addr) {
		t.Error("valid signature rejected")
	}
}

func TestVerifyRejectsEveryFlippedBit(t *testing.T) {
	kr, addr := newTestIdentity(t)

	payload := provenance.ManufacturerPayload("S-001", testDescriptor)
	sig, err := kr.Sign(payload, addr)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Any single-bit change to the signed bytes must invalidate the
	// signature — no false positives anywhere in the payload.
	for i := range payload {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(payload))
			copy(mutated, payload)
			mutated[i] ^= 1 << bit
			if provenance.Verify(mutated, sig, addr) {
				t.Fatalf("flipped bit %d of byte %d still verifies", bit, i)
			}
		}
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	kr, addr := newTestIdentity(t)
	_, other := newTestIdentity(t)

	payload := provenance.ManufacturerPayload("S-001", testDescriptor)
	sig, _ := kr.Sign(payload, addr)

	if provenance.Verify(payload, sig, other) {
		t.Error("signature verified against the wrong address")
	}
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	_, addr := newTestIdentity(t)
	payload := []byte("payload")

	cases := []struct {
		name   string
		sig    string
		signer provenance.Address
	}{
		{"empty signature", "", addr},
		{"non-hex signature", "zzzz", addr},
		{"short signature", "abcd", addr},
		{"empty address", "abcd", ""},
		{"non-hex address", "abcd", "not-an-address"},
		{"short address", "abcd", "abcdef"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if provenance.Verify(payload, tc.sig, tc.signer) {
				t.Error("garbage input verified")
			}
		})
	}
}

func TestKeyringExportImport(t *testing.T) {
	kr, addr := newTestIdentity(t)
	payload := []byte("payload")
	sig, _ := kr.Sign(payload, addr)

	dump, err := kr.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	restored := provenance.NewKeyring()
	if err := restored.Import(dump); err != nil {
		t.Fatalf("import: %v", err)
	}

	sig2, err := restored.Sign(payload, addr)
	if err != nil {
		t.Fatalf("sign after import: %v", err)
	}
	if sig != sig2 {
		t.Error("imported keyring produces different signatures")
	}

	active, err := restored.ActiveAddress()
	if err != nil || !active.Equal(addr) {
		t.Errorf("active address lost on import: %v %v", active, err)
	}
}

func TestKeyringUnknownAddress(t *testing.T) {
	kr, _ := newTestIdentity(t)
	if _, err := kr.Sign([]byte("x"), "deadbeef"); err == nil {
		t.Error("expected error signing with unknown address")
	}
}
