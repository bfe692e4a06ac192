package interfaces

import domaintypes "closedgroups/internal/domain/types"

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// KeyValueStore is a collection-scoped byte store.
type KeyValueStore interface {
	Get(collection, key string) ([]byte, bool, error)
	Set(collection, key string, value []byte) error
	Delete(collection, key string) error

	// Update runs fn with the current value and stores what fn returns,
	// atomically with respect to other writers of the same store. A nil
	// return value leaves the entry untouched.
	Update(collection, key string, fn func(old []byte, ok bool) ([]byte, error)) error

	// Keys lists keys in collection starting with prefix, in byte order.
	Keys(collection, prefix string) ([]string, error)
	DeletePrefix(collection, prefix string) error
}

// RatchetStore keeps sender-key ratchets keyed by (group, sender).
type RatchetStore interface {
	LoadRatchet(group, sender domaintypes.X25519Public) (domaintypes.Ratchet, bool, error)
	SaveRatchet(group, sender domaintypes.X25519Public, r domaintypes.Ratchet) error

	// UpdateRatchet applies fn to the stored ratchet as one read-then-write.
	// fn reports whether the returned ratchet should be written.
	UpdateRatchet(
		group, sender domaintypes.X25519Public,
		fn func(r domaintypes.Ratchet, ok bool) (domaintypes.Ratchet, bool, error),
	) error

	DeleteRatchet(group, sender domaintypes.X25519Public) error
	DeleteRatchets(group domaintypes.X25519Public) error
	ListRatchetSenders(group domaintypes.X25519Public) ([]domaintypes.X25519Public, error)
}

// GroupStore keeps group metadata, group private keys, the poll set and the
// poll cursor of every polled address.
type GroupStore interface {
	LoadGroup(group domaintypes.X25519Public) (domaintypes.GroupMetadata, bool, error)
	SaveGroup(g domaintypes.GroupMetadata) error
	ListGroups() ([]domaintypes.X25519Public, error)

	SaveGroupPrivateKey(group domaintypes.X25519Public, priv domaintypes.X25519Private) error
	LoadGroupPrivateKey(group domaintypes.X25519Public) (domaintypes.X25519Private, bool, error)
	DeleteGroupPrivateKey(group domaintypes.X25519Public) error

	AddToPollSet(group domaintypes.X25519Public) error
	RemoveFromPollSet(group domaintypes.X25519Public) error
	PollSet() ([]domaintypes.X25519Public, error)

	// LoadCursor returns the hash of the last envelope handled for address.
	LoadCursor(address domaintypes.X25519Public) (string, bool, error)
	SaveCursor(address domaintypes.X25519Public, hash string) error
}

// SessionStore persists established 1:1 sessions.
type SessionStore interface {
	SaveSession(peer domaintypes.X25519Public, session domaintypes.Session) error
	LoadSession(peer domaintypes.X25519Public) (domaintypes.Session, bool, error)
}
