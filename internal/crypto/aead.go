package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the length of the random nonce prefixed to every AEAD
	// ciphertext.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the length of the Poly1305 tag appended to every ciphertext.
	TagSize = chacha20poly1305.Overhead
)

var (
	// ErrCiphertextTooShort is returned when a ciphertext cannot hold a nonce
	// and a tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	// ErrDecrypt is returned when authentication of a ciphertext fails.
	ErrDecrypt = errors.New("crypto: message authentication failed")
)

// AEADSeal encrypts plaintext under a 32-byte key with ChaCha20-Poly1305.
// The output is nonce(12) || ciphertext || tag(16).
func AEADSeal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead key: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// AEADOpen reverses AEADSeal.
func AEADOpen(key, data []byte) ([]byte, error) {
	if len(data) < NonceSize+TagSize {
		return nil, ErrCiphertextTooShort
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead key: %w", err)
	}
	pt, err := aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// HMACSHA256 returns HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}
