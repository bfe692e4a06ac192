package crypto

import (
	"crypto/hmac"
	"errors"
	"fmt"

	"closedgroups/internal/domain"
)

// sealKeyLabel keys the HMAC that turns an ECDH secret into a symmetric key.
var sealKeyLabel = []byte("LOKI")

// directAuthLabel keys the HMAC that turns a static-static ECDH secret into
// a direct message authentication key.
var directAuthLabel = []byte("closedgroups direct auth")

// ErrBadAuth is returned when a static MAC does not verify.
var ErrBadAuth = errors.New("crypto: bad authenticator")

// Seal encrypts plaintext to recipient with a fresh ephemeral X25519 key.
//
// Steps:
//  1. Generate an ephemeral key pair.
//  2. ECDH the ephemeral private key with the recipient public key.
//  3. Derive the symmetric key as HMAC-SHA256(key="LOKI", data=shared).
//  4. ChaCha20-Poly1305 seal with a random nonce.
func Seal(plaintext []byte, recipient domain.X25519Public) (domain.X25519Public, []byte, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return domain.X25519Public{}, nil, err
	}
	defer Wipe(ephPriv[:])

	shared, err := DH(ephPriv, recipient)
	if err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("seal: %w", err)
	}
	key := HMACSHA256(sealKeyLabel, shared[:])
	Wipe(shared[:])
	defer Wipe(key)

	ct, err := AEADSeal(key, plaintext)
	if err != nil {
		return domain.X25519Public{}, nil, err
	}
	return ephPub, ct, nil
}

// Open decrypts a Seal output with the recipient private key.
func Open(
	ciphertext []byte,
	ephemeral domain.X25519Public,
	priv domain.X25519Private,
) ([]byte, error) {
	shared, err := DH(priv, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	key := HMACSHA256(sealKeyLabel, shared[:])
	Wipe(shared[:])
	defer Wipe(key)

	return AEADOpen(key, ciphertext)
}

// StaticMAC authenticates data between two long-term key holders. Either
// party can compute it; nobody else can.
func StaticMAC(priv domain.X25519Private, peer domain.X25519Public, data []byte) ([]byte, error) {
	shared, err := DH(priv, peer)
	if err != nil {
		return nil, fmt.Errorf("static mac: %w", err)
	}
	key := HMACSHA256(directAuthLabel, shared[:])
	Wipe(shared[:])
	defer Wipe(key)
	return HMACSHA256(key, data), nil
}

// VerifyStaticMAC checks a StaticMAC produced by peer for data.
func VerifyStaticMAC(priv domain.X25519Private, peer domain.X25519Public, data, mac []byte) error {
	want, err := StaticMAC(priv, peer, data)
	if err != nil {
		return err
	}
	if !hmac.Equal(want, mac) {
		return ErrBadAuth
	}
	return nil
}
