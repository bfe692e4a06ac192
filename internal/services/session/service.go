package session

import (
	"context"
	"time"

	"github.com/decred/slog"

	"closedgroups/internal/domain"
)

// Service establishes 1:1 channels with peers before control messages are
// sent to them.
//
// Direct messages are sealed to the peer's long-term key and authenticated
// with a static-static MAC, so establishing a channel only needs the peer's
// public key. The service records each peer it has seen so later calls are
// no-ops.
type Service struct {
	sessions domain.SessionStore
	now      func() time.Time
	log      slog.Logger
}

// New constructs a session Service over store. A nil logger disables
// logging.
func New(sessions domain.SessionStore, log slog.Logger) *Service {
	if log == nil {
		log = slog.Disabled
	}
	return &Service{sessions: sessions, now: time.Now, log: log}
}

// EnsureSession records a session with peer if none exists yet.
//
// Steps:
//  1. Look the peer up in the session store.
//  2. When missing, create and persist a session record.
func (s *Service) EnsureSession(ctx context.Context, peer domain.X25519Public) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok, err := s.sessions.LoadSession(peer); err != nil || ok {
		return err
	}

	session := domain.Session{
		Peer:       peer,
		CreatedUTC: s.now().Unix(),
	}
	if err := s.sessions.SaveSession(peer, session); err != nil {
		return err
	}
	s.log.Debugf("Established session with %s", peer)
	return nil
}

// Compile-time assertion that Service implements domain.SessionEstablisher.
var _ domain.SessionEstablisher = (*Service)(nil)
