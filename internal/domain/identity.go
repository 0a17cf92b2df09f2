package domain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// IdentitySize is the width of every principal and venue reference.
const IdentitySize = 32

// Identity is a 32-byte principal or account reference. For principals it is
// the raw Ed25519 public key of the signer.
type Identity [IdentitySize]byte

// ParseIdentity decodes a 64-character hex identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(IdentitySize) {
		return id, fmt.Errorf("identity must be %d hex characters, got %d", hex.EncodedLen(IdentitySize), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid identity: %w", err)
	}
	return id, nil
}

// IdentityFromPublicKey converts an Ed25519 public key into an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != ed25519.PublicKeySize {
		return id, fmt.Errorf("invalid public key length %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// PublicKey returns the identity as an Ed25519 public key.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
