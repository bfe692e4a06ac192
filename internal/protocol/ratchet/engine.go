package ratchet

import (
	"errors"
	"fmt"

	"github.com/decred/slog"

	"closedgroups/internal/domain"
	"closedgroups/internal/util/keyedmutex"
)

// MaxStepsAhead bounds how many keys StepUntil derives in one call.
const MaxStepsAhead = 2000

var (
	// ErrRatchetNotFound is returned when no ratchet is stored for the
	// (group, sender) pair.
	ErrRatchetNotFound = errors.New("ratchet: not found")
	// ErrMessageKeyMissing is returned for an index at or below the current
	// key index whose message key was never derived or is gone.
	ErrMessageKeyMissing = errors.New("ratchet: message key missing")
	// ErrTooFarAhead is returned when the target index is more than
	// MaxStepsAhead past the current one.
	ErrTooFarAhead = errors.New("ratchet: target index too far ahead")
)

type pairKey struct {
	group, sender domain.X25519Public
}

// Engine advances stored ratchets.
type Engine struct {
	store domain.RatchetStore
	locks *keyedmutex.Map[pairKey]
	log   slog.Logger
}

// NewEngine returns an Engine over store. A nil logger disables logging.
func NewEngine(store domain.RatchetStore, log slog.Logger) *Engine {
	if log == nil {
		log = slog.Disabled
	}
	return &Engine{
		store: store,
		locks: keyedmutex.New[pairKey](),
		log:   log,
	}
}

// StepOnce advances the (group, sender) ratchet by one index, persists it
// and returns the new state. Used on the sending side.
func (e *Engine) StepOnce(group, sender domain.X25519Public) (domain.Ratchet, error) {
	unlock := e.locks.Lock(pairKey{group, sender})
	defer unlock()

	var out domain.Ratchet
	err := e.store.UpdateRatchet(group, sender, func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error) {
		if !ok {
			return r, false, ErrRatchetNotFound
		}
		next := clone(r)
		if err := advance(&next); err != nil {
			return r, false, err
		}
		out = next
		return next, true, nil
	})
	if err != nil {
		return domain.Ratchet{}, fmt.Errorf("step ratchet %s/%s: %w", group, sender, err)
	}
	return out, nil
}

// StepUntil makes sure the message key for target is available and returns
// the resulting ratchet.
//
// If target is at or below the current index the stored ratchet is returned
// unchanged when it holds the key for target, and ErrMessageKeyMissing
// otherwise. If target is ahead, the ratchet is stepped until its index
// equals target, keeping every intermediate key, and persisted.
func (e *Engine) StepUntil(group, sender domain.X25519Public, target uint32) (domain.Ratchet, error) {
	unlock := e.locks.Lock(pairKey{group, sender})
	defer unlock()

	var out domain.Ratchet
	err := e.store.UpdateRatchet(group, sender, func(r domain.Ratchet, ok bool) (domain.Ratchet, bool, error) {
		if !ok {
			return r, false, ErrRatchetNotFound
		}
		if target <= r.KeyIndex {
			if _, ok := MessageKey(r, target); !ok {
				return r, false, fmt.Errorf("%w: index %d, current %d",
					ErrMessageKeyMissing, target, r.KeyIndex)
			}
			out = r
			return r, false, nil
		}
		if target-r.KeyIndex > MaxStepsAhead {
			return r, false, fmt.Errorf("%w: index %d, current %d",
				ErrTooFarAhead, target, r.KeyIndex)
		}
		next := clone(r)
		for next.KeyIndex < target {
			if err := advance(&next); err != nil {
				return r, false, err
			}
		}
		e.log.Tracef("Stepped ratchet %s/%s from %d to %d", group, sender, r.KeyIndex, target)
		out = next
		return next, true, nil
	})
	if err != nil {
		return domain.Ratchet{}, fmt.Errorf("step ratchet %s/%s: %w", group, sender, err)
	}
	return out, nil
}

// MessageKeyAt returns the message key for index, stepping the ratchet
// forward when needed.
func (e *Engine) MessageKeyAt(group, sender domain.X25519Public, index uint32) ([]byte, error) {
	r, err := e.StepUntil(group, sender, index)
	if err != nil {
		return nil, err
	}
	mk, ok := MessageKey(r, index)
	if !ok {
		return nil, fmt.Errorf("step ratchet %s/%s: %w: index %d", group, sender, ErrMessageKeyMissing, index)
	}
	return mk, nil
}
