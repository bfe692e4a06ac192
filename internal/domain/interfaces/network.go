package interfaces

import (
	"context"

	domaintypes "closedgroups/internal/domain/types"
)

// NetworkLayer talks to the storage nodes that hold messages per public key.
type NetworkLayer interface {
	GetSwarm(ctx context.Context, pk domaintypes.X25519Public) ([]domaintypes.Node, error)
	FetchMessages(
		ctx context.Context,
		node domaintypes.Node,
		pk domaintypes.X25519Public,
		lastHash string,
	) ([]domaintypes.RawEnvelope, error)
	StoreMessage(ctx context.Context, pk domaintypes.X25519Public, data []byte) error
}
