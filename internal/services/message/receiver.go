package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/wire"
	"closedgroups/internal/services/groupcipher"
)

var (
	// ErrGroupMismatch is returned when a group message carries an update
	// for a different group.
	ErrGroupMismatch = errors.New("update names a different group")
	// ErrDirectFromSelf is returned for direct messages we sent ourselves.
	ErrDirectFromSelf = errors.New("direct message sent by self")
)

// Receiver decrypts fetched envelopes and dispatches their contents.
type Receiver struct {
	local    domain.Identity
	cipher   *groupcipher.Cipher
	updates  domain.UpdateHandler
	messages domain.MessageSink
	log      slog.Logger
}

// NewReceiver returns a Receiver acting as local. messages may be nil, in
// which case text messages are only logged. A nil logger disables logging.
func NewReceiver(
	local domain.Identity,
	cipher *groupcipher.Cipher,
	updates domain.UpdateHandler,
	messages domain.MessageSink,
	log slog.Logger,
) *Receiver {
	if log == nil {
		log = slog.Disabled
	}
	return &Receiver{
		local:    local,
		cipher:   cipher,
		updates:  updates,
		messages: messages,
		log:      log,
	}
}

// HandleEnvelope processes data fetched for address, which is either a
// group public key or the local user's own inbox. Failures are logged and
// returned; the envelope is dropped either way.
func (r *Receiver) HandleEnvelope(ctx context.Context, address domain.X25519Public, data []byte) error {
	var err error
	if address == r.local.XPub {
		err = r.handleDirect(ctx, data)
	} else {
		err = r.handleGroup(ctx, address, data)
	}
	if err != nil {
		r.logDrop(address, err)
	}
	return err
}

func (r *Receiver) handleGroup(ctx context.Context, group domain.X25519Public, data []byte) error {
	pt, sender, err := r.cipher.Decrypt(ctx, data, group)
	if err != nil {
		return err
	}
	c, err := wire.UnmarshalContent(pt)
	if err != nil {
		return fmt.Errorf("group %s from %s: %w", group, sender, err)
	}

	switch c.Kind {
	case domain.ContentText:
		msg := domain.GroupMessage{
			Group:     group,
			Sender:    sender,
			Text:      c.Text,
			Timestamp: c.Timestamp,
		}
		if r.messages == nil {
			r.log.Infof("Message in group %s from %s: %q", group, sender, c.Text)
			return nil
		}
		r.messages.Deliver(msg)
		return nil

	case domain.ContentUpdate:
		if c.Update.GroupPublicKey != group {
			return fmt.Errorf("group %s from %s: %w", group, sender, ErrGroupMismatch)
		}
		u := c.Update
		u.Sent = c.Timestamp
		return r.updates.HandleUpdate(ctx, sender, u)
	}
	r.log.Debugf("Dropping content of unknown kind %d in group %s from %s", c.Kind, group, sender)
	return nil
}

// handleDirect opens a message sealed to our identity key.
//
// Steps:
//  1. Open the sealed box with our identity private key.
//  2. Decode the direct message and drop our own.
//  3. Verify the static MAC against the claimed sender.
//  4. Hand the update, stamped with its send time, to the lifecycle manager.
func (r *Receiver) handleDirect(ctx context.Context, data []byte) error {
	outer, err := wire.UnmarshalOuter(data)
	if err != nil {
		return fmt.Errorf("direct message: %w", err)
	}
	pt, err := crypto.Open(outer.Ciphertext, outer.EphemeralPublicKey, r.local.XPriv)
	if err != nil {
		return fmt.Errorf("direct message: %w", err)
	}
	dm, err := wire.UnmarshalDirect(pt)
	if err != nil {
		return fmt.Errorf("direct message: %w", err)
	}
	if dm.Sender == r.local.XPub {
		return ErrDirectFromSelf
	}
	auth := dm.Auth
	dm.Auth = nil
	if err := crypto.VerifyStaticMAC(r.local.XPriv, dm.Sender, wire.DirectAuthData(dm), auth); err != nil {
		return fmt.Errorf("direct message from %s: %w", dm.Sender, err)
	}
	u := dm.Update
	u.Sent = dm.Timestamp
	return r.updates.HandleUpdate(ctx, dm.Sender, u)
}

func (r *Receiver) logDrop(address domain.X25519Public, err error) {
	var derr *groupcipher.DecryptError
	switch {
	case errors.Is(err, groupcipher.ErrSelfSend), errors.Is(err, ErrDirectFromSelf):
		r.log.Tracef("Skipping own message on %s", address)
	case errors.Is(err, context.Canceled):
	case errors.As(err, &derr):
		r.log.Debugf("Dropping undecryptable message: %v", err)
	default:
		r.log.Infof("Dropping message on %s: %v", address, err)
	}
}

// Compile-time assertion that Receiver implements domain.EnvelopeHandler.
var _ domain.EnvelopeHandler = (*Receiver)(nil)
