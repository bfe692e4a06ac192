package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/util/keyedmutex"
)

// defaultDispatchConcurrency bounds parallel 1:1 sends per operation.
const defaultDispatchConcurrency = 8

// Config holds the collaborators of a Manager.
type Config struct {
	// Local is the public key of the local user.
	Local domain.X25519Public

	Groups     domain.GroupStore
	Ratchets   domain.RatchetStore
	Sessions   domain.SessionEstablisher
	Dispatcher domain.UpdateDispatcher

	// Events receives lifecycle events. When nil, events are only logged.
	Events domain.EventSink

	// Rand is the chain key source. Nil means crypto/rand.
	Rand io.Reader
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
	// DispatchConcurrency bounds parallel 1:1 sends. Zero means 8.
	DispatchConcurrency int

	Log slog.Logger
}

// Manager runs group lifecycle operations for the local user.
type Manager struct {
	cfg   Config
	locks *keyedmutex.Map[domain.X25519Public]
	log   slog.Logger
}

// New returns a Manager for cfg.
func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = defaultDispatchConcurrency
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Manager{
		cfg:   cfg,
		locks: keyedmutex.New[domain.X25519Public](),
		log:   log,
	}
}

// Group returns the stored metadata of group.
func (m *Manager) Group(group domain.X25519Public) (domain.GroupMetadata, error) {
	return m.loadGroup(group)
}

// Groups returns the metadata of every known group.
func (m *Manager) Groups() ([]domain.GroupMetadata, error) {
	keys, err := m.cfg.Groups.ListGroups()
	if err != nil {
		return nil, err
	}
	out := make([]domain.GroupMetadata, 0, len(keys))
	for _, k := range keys {
		g, err := m.loadGroup(k)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *Manager) loadGroup(group domain.X25519Public) (domain.GroupMetadata, error) {
	g, ok, err := m.cfg.Groups.LoadGroup(group)
	if err != nil {
		return domain.GroupMetadata{}, err
	}
	if !ok {
		return domain.GroupMetadata{}, fmt.Errorf("%w %s", ErrUnknownGroup, group)
	}
	return g, nil
}

// others returns members without the local user.
func (m *Manager) others(members []domain.X25519Public) []domain.X25519Public {
	return slices.DeleteFunc(slices.Clone(members), func(k domain.X25519Public) bool {
		return k == m.cfg.Local
	})
}

// newRatchet generates and stores a fresh ratchet for owner and returns its
// shareable snapshot.
func (m *Manager) newRatchet(group, owner domain.X25519Public) (domain.SenderKey, error) {
	r, err := ratchet.Generate(m.cfg.Rand)
	if err != nil {
		return domain.SenderKey{}, err
	}
	if err := m.cfg.Ratchets.SaveRatchet(group, owner, r); err != nil {
		return domain.SenderKey{}, err
	}
	return ratchet.ToSenderKey(r, owner), nil
}

// senderKeys snapshots the stored ratchets of members, in member order.
// Members without a ratchet are skipped.
func (m *Manager) senderKeys(group domain.X25519Public, members []domain.X25519Public) ([]domain.SenderKey, error) {
	keys := make([]domain.SenderKey, 0, len(members))
	for _, member := range members {
		r, ok, err := m.cfg.Ratchets.LoadRatchet(group, member)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.log.Debugf("No ratchet for %s in group %s to share", member, group)
			continue
		}
		keys = append(keys, ratchet.ToSenderKey(r, member))
	}
	return keys, nil
}

// sendToPeers delivers u to every peer concurrently. A failure for one peer
// does not stop the others; all failures are joined into the result.
func (m *Manager) sendToPeers(ctx context.Context, peers []domain.X25519Public, u domain.GroupUpdate) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(m.cfg.DispatchConcurrency)
	for _, peer := range peers {
		g.Go(func() error {
			err := m.cfg.Sessions.EnsureSession(ctx, peer)
			if err == nil {
				err = m.cfg.Dispatcher.SendToPeer(ctx, peer, u)
			}
			if err != nil {
				m.log.Warnf("Unable to send %s update of group %s to %s: %v",
					u.Kind, u.GroupPublicKey, peer, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("send %s to %s: %w", u.Kind, peer, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ensureSessions makes sure a 1:1 channel exists with every peer. Failures
// are logged only; sending retries the session anyway.
func (m *Manager) ensureSessions(ctx context.Context, peers []domain.X25519Public) {
	for _, peer := range peers {
		if err := m.cfg.Sessions.EnsureSession(ctx, peer); err != nil {
			m.log.Warnf("Unable to establish session with %s: %v", peer, err)
		}
	}
}

func (m *Manager) record(ev domain.InfoEvent) {
	if ev.Time.IsZero() {
		ev.Time = m.cfg.Now()
	}
	m.log.Infof("Group %s: %s by %s (%d members)", ev.Group, ev.Kind, ev.Actor, len(ev.Members))
	if m.cfg.Events != nil {
		m.cfg.Events.Record(ev)
	}
}
