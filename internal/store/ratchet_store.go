package store

import (
	"fmt"
	"strings"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/wire"
)

const ratchetCollection = "ratchets"

// RatchetKVStore persists sender-key ratchets in a KeyValueStore, keyed by
// "<group hex>/<sender hex>".
type RatchetKVStore struct {
	kv domain.KeyValueStore
}

// NewRatchetStore returns a RatchetKVStore over kv.
func NewRatchetStore(kv domain.KeyValueStore) *RatchetKVStore {
	return &RatchetKVStore{kv: kv}
}

func ratchetKey(group, sender domain.X25519Public) string {
	return group.String() + "/" + sender.String()
}

// LoadRatchet returns the ratchet for (group, sender).
func (s *RatchetKVStore) LoadRatchet(group, sender domain.X25519Public) (domain.Ratchet, bool, error) {
	b, ok, err := s.kv.Get(ratchetCollection, ratchetKey(group, sender))
	if err != nil || !ok {
		return domain.Ratchet{}, false, err
	}
	r, err := wire.UnmarshalRatchet(b)
	if err != nil {
		return domain.Ratchet{}, false, fmt.Errorf("load ratchet %s: %w", ratchetKey(group, sender), err)
	}
	return r, true, nil
}

// SaveRatchet replaces the ratchet for (group, sender).
func (s *RatchetKVStore) SaveRatchet(group, sender domain.X25519Public, r domain.Ratchet) error {
	return s.kv.Set(ratchetCollection, ratchetKey(group, sender), wire.MarshalRatchet(r))
}

// UpdateRatchet applies fn as one read-then-write.
func (s *RatchetKVStore) UpdateRatchet(
	group, sender domain.X25519Public,
	fn func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error),
) error {
	key := ratchetKey(group, sender)
	return s.kv.Update(ratchetCollection, key, func(old []byte, ok bool) ([]byte, error) {
		var r domain.Ratchet
		if ok {
			var err error
			if r, err = wire.UnmarshalRatchet(old); err != nil {
				return nil, fmt.Errorf("load ratchet %s: %w", key, err)
			}
		}
		next, write, err := fn(r, ok)
		if err != nil || !write {
			return nil, err
		}
		return wire.MarshalRatchet(next), nil
	})
}

// DeleteRatchet removes the ratchet for (group, sender).
func (s *RatchetKVStore) DeleteRatchet(group, sender domain.X25519Public) error {
	return s.kv.Delete(ratchetCollection, ratchetKey(group, sender))
}

// DeleteRatchets removes every ratchet of group.
func (s *RatchetKVStore) DeleteRatchets(group domain.X25519Public) error {
	return s.kv.DeletePrefix(ratchetCollection, group.String()+"/")
}

// ListRatchetSenders returns the senders with a stored ratchet in group.
func (s *RatchetKVStore) ListRatchetSenders(group domain.X25519Public) ([]domain.X25519Public, error) {
	prefix := group.String() + "/"
	keys, err := s.kv.Keys(ratchetCollection, prefix)
	if err != nil {
		return nil, err
	}
	senders := make([]domain.X25519Public, 0, len(keys))
	for _, k := range keys {
		pk, err := domain.ParseX25519Public(strings.TrimPrefix(k, prefix))
		if err != nil {
			return nil, fmt.Errorf("ratchet key %q: %w", k, err)
		}
		senders = append(senders, pk)
	}
	return senders, nil
}

// Compile-time assertion that RatchetKVStore implements domain.RatchetStore.
var _ domain.RatchetStore = (*RatchetKVStore)(nil)
