package store

import (
	"encoding/json"

	"closedgroups/internal/domain"
)

const sessionCollection = "sessions"

// SessionKVStore persists 1:1 session records as JSON.
type SessionKVStore struct {
	kv domain.KeyValueStore
}

// NewSessionStore returns a SessionKVStore over kv.
func NewSessionStore(kv domain.KeyValueStore) *SessionKVStore {
	return &SessionKVStore{kv: kv}
}

// SaveSession writes a session record for peer.
func (s *SessionKVStore) SaveSession(peer domain.X25519Public, session domain.Session) error {
	b, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.kv.Set(sessionCollection, peer.String(), b)
}

// LoadSession retrieves the session record for peer.
func (s *SessionKVStore) LoadSession(peer domain.X25519Public) (domain.Session, bool, error) {
	b, ok, err := s.kv.Get(sessionCollection, peer.String())
	if err != nil || !ok {
		return domain.Session{}, false, err
	}
	var session domain.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return domain.Session{}, false, err
	}
	return session, true, nil
}

// Compile-time assertion that SessionKVStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionKVStore)(nil)
