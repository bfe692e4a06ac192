package ratchet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
)

const chainKeySize = 32

var (
	messageKeySeed = []byte{0x01}
	chainKeySeed   = []byte{0x02}
)

// ErrIndexOverflow is returned when a chain has used every key index.
var ErrIndexOverflow = errors.New("ratchet: key index exhausted")

// Generate returns a fresh ratchet at index 0 with a random chain key. A nil
// reader means crypto/rand.
func Generate(r io.Reader) (domain.Ratchet, error) {
	if r == nil {
		r = rand.Reader
	}
	ck := make([]byte, chainKeySize)
	if _, err := io.ReadFull(r, ck); err != nil {
		return domain.Ratchet{}, fmt.Errorf("generate chain key: %w", err)
	}
	return domain.Ratchet{ChainKey: ck}, nil
}

// FromSenderKey builds a ratchet from a shared snapshot. The result has no
// message keys.
func FromSenderKey(sk domain.SenderKey) domain.Ratchet {
	return domain.Ratchet{
		ChainKey: slices.Clone(sk.ChainKey),
		KeyIndex: sk.KeyIndex,
	}
}

// ToSenderKey returns the shareable snapshot of r for sender.
func ToSenderKey(r domain.Ratchet, sender domain.X25519Public) domain.SenderKey {
	return domain.SenderKey{
		ChainKey:  slices.Clone(r.ChainKey),
		KeyIndex:  r.KeyIndex,
		PublicKey: sender,
	}
}

// Step returns r advanced by one index. r is not modified.
func Step(r domain.Ratchet) (domain.Ratchet, error) {
	next := clone(r)
	if err := advance(&next); err != nil {
		return domain.Ratchet{}, err
	}
	return next, nil
}

// MessageKey returns the stored message key for index.
func MessageKey(r domain.Ratchet, index uint32) ([]byte, bool) {
	i, ok := slices.BinarySearchFunc(r.MessageKeys, index, func(mk domain.MessageKey, idx uint32) int {
		switch {
		case mk.Index < idx:
			return -1
		case mk.Index > idx:
			return 1
		}
		return 0
	})
	if !ok {
		return nil, false
	}
	return r.MessageKeys[i].Key, true
}

// advance steps r in place.
func advance(r *domain.Ratchet) error {
	if r.KeyIndex == math.MaxUint32 {
		return ErrIndexOverflow
	}
	mk := crypto.HMACSHA256(r.ChainKey, messageKeySeed)
	ck := crypto.HMACSHA256(r.ChainKey, chainKeySeed)
	crypto.Wipe(r.ChainKey)

	r.ChainKey = ck
	r.KeyIndex++
	r.MessageKeys = append(r.MessageKeys, domain.MessageKey{Index: r.KeyIndex, Key: mk})
	return nil
}

func clone(r domain.Ratchet) domain.Ratchet {
	out := domain.Ratchet{
		ChainKey:    slices.Clone(r.ChainKey),
		KeyIndex:    r.KeyIndex,
		MessageKeys: make([]domain.MessageKey, len(r.MessageKeys), len(r.MessageKeys)+1),
		Rotated:     r.Rotated,
	}
	copy(out.MessageKeys, r.MessageKeys)
	return out
}
