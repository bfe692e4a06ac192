package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/wire"
	"closedgroups/internal/services/groupcipher"
)

// ErrEmptyText is returned when sending an empty text message.
var ErrEmptyText = errors.New("empty message text")

// Sender encrypts and stores outgoing group and direct messages.
type Sender struct {
	local  domain.Identity
	cipher *groupcipher.Cipher
	net    domain.NetworkLayer
	now    func() time.Time
	log    slog.Logger
}

// NewSender returns a Sender acting as local. A nil logger disables logging.
func NewSender(
	local domain.Identity,
	cipher *groupcipher.Cipher,
	net domain.NetworkLayer,
	log slog.Logger,
) *Sender {
	if log == nil {
		log = slog.Disabled
	}
	return &Sender{
		local:  local,
		cipher: cipher,
		net:    net,
		now:    time.Now,
		log:    log,
	}
}

// SendText sends a text message to group.
func (s *Sender) SendText(ctx context.Context, group domain.X25519Public, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	return s.sendContent(ctx, group, domain.Content{
		Kind:      domain.ContentText,
		Text:      text,
		Timestamp: s.now().UnixMilli(),
	})
}

// SendToGroup broadcasts a control update through the group cipher.
func (s *Sender) SendToGroup(ctx context.Context, group domain.X25519Public, u domain.GroupUpdate) error {
	return s.sendContent(ctx, group, domain.Content{
		Kind:      domain.ContentUpdate,
		Update:    u,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Sender) sendContent(ctx context.Context, group domain.X25519Public, c domain.Content) error {
	ct, err := s.cipher.Encrypt(ctx, wire.MarshalContent(c), group, s.local.XPub)
	if err != nil {
		return fmt.Errorf("encrypt for group %s: %w", group, err)
	}
	if err := s.net.StoreMessage(ctx, group, ct); err != nil {
		return fmt.Errorf("store message for group %s: %w", group, err)
	}
	s.log.Debugf("Sent %d bytes to group %s", len(ct), group)
	return nil
}

// SendToPeer delivers a control update to peer's direct inbox.
//
// Steps:
//  1. Authenticate the direct message with a static MAC between our identity
//     and the peer's.
//  2. Seal it to the peer's identity key.
//  3. Store it under the peer's public key.
func (s *Sender) SendToPeer(ctx context.Context, peer domain.X25519Public, u domain.GroupUpdate) error {
	dm := domain.DirectMessage{
		Sender:    s.local.XPub,
		Update:    u,
		Timestamp: s.now().UnixMilli(),
	}
	auth, err := crypto.StaticMAC(s.local.XPriv, peer, wire.DirectAuthData(dm))
	if err != nil {
		return fmt.Errorf("authenticate direct message to %s: %w", peer, err)
	}
	dm.Auth = auth

	eph, ct, err := crypto.Seal(wire.MarshalDirect(dm), peer)
	if err != nil {
		return fmt.Errorf("seal direct message to %s: %w", peer, err)
	}
	data := wire.MarshalOuter(domain.OuterEnvelope{EphemeralPublicKey: eph, Ciphertext: ct})
	if err := s.net.StoreMessage(ctx, peer, data); err != nil {
		return fmt.Errorf("store direct message for %s: %w", peer, err)
	}
	s.log.Debugf("Sent %s update for group %s to %s", u.Kind, u.GroupPublicKey, peer)
	return nil
}

// Compile-time assertion that Sender implements domain.UpdateDispatcher.
var _ domain.UpdateDispatcher = (*Sender)(nil)
