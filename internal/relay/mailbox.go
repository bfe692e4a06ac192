package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"closedgroups/internal/domain"
)

// DefaultRetain is the number of envelopes kept per public key.
const DefaultRetain = 10000

// Mailbox holds envelopes per public key, oldest first.
type Mailbox struct {
	mu     sync.RWMutex
	boxes  map[domain.X25519Public][]domain.RawEnvelope
	retain int
	now    func() time.Time
}

// NewMailbox returns an empty Mailbox keeping at most retain envelopes per
// key. A non-positive retain means DefaultRetain.
func NewMailbox(retain int) *Mailbox {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Mailbox{
		boxes:  make(map[domain.X25519Public][]domain.RawEnvelope),
		retain: retain,
		now:    time.Now,
	}
}

// Put stores data under pk. Storing the same data twice keeps one copy.
func (m *Mailbox) Put(pk domain.X25519Public, data []byte) domain.RawEnvelope {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.boxes[pk]
	for _, env := range box {
		if env.Hash == hash {
			return env
		}
	}
	env := domain.RawEnvelope{
		Hash:      hash,
		Data:      append([]byte(nil), data...),
		Timestamp: m.now().UnixMilli(),
	}
	box = append(box, env)
	if len(box) > m.retain {
		box = box[len(box)-m.retain:]
	}
	m.boxes[pk] = box
	return env
}

// After returns the envelopes of pk stored after lastHash. An empty or
// unknown lastHash returns all retained envelopes.
func (m *Mailbox) After(pk domain.X25519Public, lastHash string) []domain.RawEnvelope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	box := m.boxes[pk]
	start := 0
	if lastHash != "" {
		for i, env := range box {
			if env.Hash == lastHash {
				start = i + 1
				break
			}
		}
	}
	out := make([]domain.RawEnvelope, len(box)-start)
	copy(out, box[start:])
	return out
}

// Len returns the number of envelopes retained for pk.
func (m *Mailbox) Len(pk domain.X25519Public) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.boxes[pk])
}
