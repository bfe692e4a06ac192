package types

import (
	"encoding/hex"
	"fmt"
)

// X25519Public is a Curve25519 public key. Identity keys and group keys
// share this type; a group is addressed by its public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// String returns the lowercase hex encoding of the key.
func (p X25519Public) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// ParseX25519Public decodes a hex encoded public key.
func ParseX25519Public(s string) (X25519Public, error) {
	var pk X25519Public
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicFromBytes copies b into a public key. It fails when b has the
// wrong length.
func PublicFromBytes(b []byte) (X25519Public, error) {
	var pk X25519Public
	if len(b) != len(pk) {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MarshalText encodes the key as hex.
func (p X25519Public) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a hex encoded key.
func (p *X25519Public) UnmarshalText(b []byte) error {
	pk, err := ParseX25519Public(string(b))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
