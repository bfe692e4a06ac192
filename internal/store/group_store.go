package store

import (
	"fmt"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/wire"
)

const (
	groupCollection    = "groups"
	groupKeyCollection = "group-keys"
	pollSetCollection  = "poll-set"
	cursorCollection   = "poll-cursors"
)

// GroupKVStore persists group metadata, group private keys, the poll set and
// poll cursors.
type GroupKVStore struct {
	kv domain.KeyValueStore
}

// NewGroupStore returns a GroupKVStore over kv.
func NewGroupStore(kv domain.KeyValueStore) *GroupKVStore {
	return &GroupKVStore{kv: kv}
}

// LoadGroup returns the metadata for group.
func (s *GroupKVStore) LoadGroup(group domain.X25519Public) (domain.GroupMetadata, bool, error) {
	b, ok, err := s.kv.Get(groupCollection, group.String())
	if err != nil || !ok {
		return domain.GroupMetadata{}, false, err
	}
	g, err := wire.UnmarshalGroup(b)
	if err != nil {
		return domain.GroupMetadata{}, false, fmt.Errorf("load group %s: %w", group, err)
	}
	return g, true, nil
}

// SaveGroup replaces the metadata of g.PublicKey.
func (s *GroupKVStore) SaveGroup(g domain.GroupMetadata) error {
	return s.kv.Set(groupCollection, g.PublicKey.String(), wire.MarshalGroup(g))
}

// ListGroups returns every group with stored metadata.
func (s *GroupKVStore) ListGroups() ([]domain.X25519Public, error) {
	return s.listKeys(groupCollection)
}

// SaveGroupPrivateKey stores the private key of group.
func (s *GroupKVStore) SaveGroupPrivateKey(group domain.X25519Public, priv domain.X25519Private) error {
	return s.kv.Set(groupKeyCollection, group.String(), priv[:])
}

// LoadGroupPrivateKey returns the private key of group.
func (s *GroupKVStore) LoadGroupPrivateKey(group domain.X25519Public) (domain.X25519Private, bool, error) {
	var priv domain.X25519Private
	b, ok, err := s.kv.Get(groupKeyCollection, group.String())
	if err != nil || !ok {
		return priv, false, err
	}
	if len(b) != len(priv) {
		return priv, false, fmt.Errorf("group key %s: stored key is %d bytes", group, len(b))
	}
	copy(priv[:], b)
	return priv, true, nil
}

// DeleteGroupPrivateKey removes the private key of group.
func (s *GroupKVStore) DeleteGroupPrivateKey(group domain.X25519Public) error {
	return s.kv.Delete(groupKeyCollection, group.String())
}

// AddToPollSet marks group for polling.
func (s *GroupKVStore) AddToPollSet(group domain.X25519Public) error {
	return s.kv.Set(pollSetCollection, group.String(), []byte{1})
}

// RemoveFromPollSet stops polling group.
func (s *GroupKVStore) RemoveFromPollSet(group domain.X25519Public) error {
	return s.kv.Delete(pollSetCollection, group.String())
}

// PollSet returns every group marked for polling.
func (s *GroupKVStore) PollSet() ([]domain.X25519Public, error) {
	return s.listKeys(pollSetCollection)
}

// LoadCursor returns the poll cursor of address.
func (s *GroupKVStore) LoadCursor(address domain.X25519Public) (string, bool, error) {
	b, ok, err := s.kv.Get(cursorCollection, address.String())
	if err != nil || !ok {
		return "", false, err
	}
	return string(b), true, nil
}

// SaveCursor replaces the poll cursor of address.
func (s *GroupKVStore) SaveCursor(address domain.X25519Public, hash string) error {
	return s.kv.Set(cursorCollection, address.String(), []byte(hash))
}

func (s *GroupKVStore) listKeys(collection string) ([]domain.X25519Public, error) {
	keys, err := s.kv.Keys(collection, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.X25519Public, 0, len(keys))
	for _, k := range keys {
		pk, err := domain.ParseX25519Public(k)
		if err != nil {
			return nil, fmt.Errorf("%s key %q: %w", collection, k, err)
		}
		out = append(out, pk)
	}
	return out, nil
}

// Compile-time assertion that GroupKVStore implements domain.GroupStore.
var _ domain.GroupStore = (*GroupKVStore)(nil)
