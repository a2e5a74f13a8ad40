package provenance

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Verify reports whether sig (hex-encoded) was produced over payload by the
// private key behind claimedSigner. It never returns an error: a malformed
// signature, an undecodable address or a wrong-length blob all verify as
// false, so callers have exactly one failure path.
//
// The claimed signer must come from the ledger record for that role, never
// from the untrusted bundle.
func Verify(payload []byte, sig string, claimedSigner Address) bool {
	pub, err := claimedSigner.PublicKey()
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(sig)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, payload, raw)
}
