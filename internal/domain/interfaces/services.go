package interfaces

import (
	"context"

	domaintypes "closedgroups/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// SessionEstablisher makes sure a 1:1 channel with peer exists.
type SessionEstablisher interface {
	EnsureSession(ctx context.Context, peer domaintypes.X25519Public) error
}

// UpdateDispatcher delivers group updates, either to one member over the
// 1:1 channel or to the whole group through the group cipher.
type UpdateDispatcher interface {
	SendToPeer(ctx context.Context, peer domaintypes.X25519Public, u domaintypes.GroupUpdate) error
	SendToGroup(ctx context.Context, group domaintypes.X25519Public, u domaintypes.GroupUpdate) error
}

// UpdateHandler applies a received group update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, sender domaintypes.X25519Public, u domaintypes.GroupUpdate) error
}

// EnvelopeHandler consumes raw envelopes fetched for a polled address.
type EnvelopeHandler interface {
	HandleEnvelope(ctx context.Context, address domaintypes.X25519Public, data []byte) error
}

// EventSink records lifecycle events for display.
type EventSink interface {
	Record(ev domaintypes.InfoEvent)
}

// MessageSink receives decrypted group text messages.
type MessageSink interface {
	Deliver(msg domaintypes.GroupMessage)
}
