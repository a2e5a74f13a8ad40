package provenance

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Signer is the external signing collaborator. The engine hands it canonical
// payload bytes and an acting address; key material never crosses this
// boundary in the other direction.
type Signer interface {
	// Sign produces a hex-encoded signature over payload with the key
	// belonging to acting.
	Sign(payload []byte, acting Address) (string, error)

	// ActiveAddress returns the currently selected signing identity.
	ActiveAddress() (Address, error)
}

// ErrUnknownSigner is returned when a Signer has no key for the requested
// address.
var ErrUnknownSigner = errors.New("provenance: no key for address")

// Keyring is a local Signer used by the CLI, the demo seeders and the
// tests. Production deployments put a remote signer (wallet, HSM bridge)
// behind the Signer interface instead.
type Keyring struct {
	mu     sync.RWMutex
	keys   map[Address]ed25519.PrivateKey
	active Address
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[Address]ed25519.PrivateKey)}
}

// Generate creates a fresh keypair, stores it and returns its address.
// The first generated key becomes the active identity.
func (k *Keyring) Generate() (Address, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("provenance: generate key: %w", err)
	}

	addr := AddressFromPublicKey(pub)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[addr] = priv
	if k.active == "" {
		k.active = addr
	}
	return addr, nil
}

// SetActive selects the identity returned by ActiveAddress.
func (k *Keyring) SetActive(addr Address) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[addr.Normalized()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, addr)
	}
	k.active = addr.Normalized()
	return nil
}

// ActiveAddress implements Signer.
func (k *Keyring) ActiveAddress() (Address, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active == "" {
		return "", errors.New("provenance: keyring has no keys")
	}
	return k.active, nil
}

// Addresses lists every identity in the keyring.
func (k *Keyring) Addresses() []Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Address, 0, len(k.keys))
	for a := range k.keys {
		out = append(out, a)
	}
	return out
}

// Sign implements Signer.
func (k *Keyring) Sign(payload []byte, acting Address) (string, error) {
	k.mu.RLock()
	priv, ok := k.keys[acting.Normalized()]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSigner, acting)
	}
	return hex.EncodeToString(ed25519.Sign(priv, payload)), nil
}

// Export serializes the keyring to JSON. Callers are expected to encrypt
// the result before it touches disk.
func (k *Keyring) Export() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	dump := struct {
		Active Address            `json:"active"`
		Keys   map[Address]string `json:"keys"`
	}{Active: k.active, Keys: make(map[Address]string, len(k.keys))}

	for a, priv := range k.keys {
		dump.Keys[a] = hex.EncodeToString(priv.Seed())
	}
	return json.Marshal(dump)
}

// Import loads a keyring previously produced by Export.
func (k *Keyring) Import(data []byte) error {
	var dump struct {
		Active Address            `json:"active"`
		Keys   map[Address]string `json:"keys"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("provenance: import keyring: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for a, seedHex := range dump.Keys {
		seed, err := hex.DecodeString(seedHex)
		if err != nil || len(seed) != ed25519.SeedSize {
			return fmt.Errorf("provenance: import keyring: bad seed for %s", a)
		}
		k.keys[a.Normalized()] = ed25519.NewKeyFromSeed(seed)
	}
	if dump.Active != "" {
		k.active = dump.Active.Normalized()
	}
	return nil
}
