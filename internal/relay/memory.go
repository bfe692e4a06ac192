package relay

import (
	"context"

	"closedgroups/internal/domain"
)

// memoryNode is the node reported by Memory.
var memoryNode = domain.Node{URL: "memory://local"}

// Memory is a NetworkLayer backed directly by a Mailbox.
type Memory struct {
	box *Mailbox
}

// NewMemory returns a Memory network over box.
func NewMemory(box *Mailbox) *Memory {
	return &Memory{box: box}
}

func (m *Memory) GetSwarm(ctx context.Context, pk domain.X25519Public) ([]domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []domain.Node{memoryNode}, nil
}

func (m *Memory) FetchMessages(
	ctx context.Context,
	node domain.Node,
	pk domain.X25519Public,
	lastHash string,
) ([]domain.RawEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.box.After(pk, lastHash), nil
}

func (m *Memory) StoreMessage(ctx context.Context, pk domain.X25519Public, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.box.Put(pk, data)
	return nil
}

var _ domain.NetworkLayer = (*Memory)(nil)
