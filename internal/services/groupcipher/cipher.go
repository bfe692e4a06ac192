package groupcipher

import (
	"context"
	"fmt"

	"github.com/decred/slog"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
	"closedgroups/internal/protocol/ratchet"
	"closedgroups/internal/protocol/wire"
)

// Cipher is the group message cipher of the local user.
type Cipher struct {
	local    domain.X25519Public
	ratchets *ratchet.Engine
	groups   domain.GroupStore
	log      slog.Logger
}

// New returns a Cipher for the local user. A nil logger disables logging.
func New(
	local domain.X25519Public,
	ratchets *ratchet.Engine,
	groups domain.GroupStore,
	log slog.Logger,
) *Cipher {
	if log == nil {
		log = slog.Disabled
	}
	return &Cipher{
		local:    local,
		ratchets: ratchets,
		groups:   groups,
		log:      log,
	}
}

// Encrypt produces the wire form of plaintext sent by sender to group.
//
// Steps:
//  1. Advance the sender's ratchet by one and take the new message key.
//  2. Encrypt plaintext with that key.
//  3. Wrap ciphertext, sender and key index in an inner envelope.
//  4. Seal the inner envelope to the group public key.
func (c *Cipher) Encrypt(
	ctx context.Context,
	plaintext []byte,
	group, sender domain.X25519Public,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := c.ratchets.StepOnce(group, sender)
	if err != nil {
		return nil, err
	}
	mk, ok := ratchet.MessageKey(r, r.KeyIndex)
	if !ok {
		return nil, fmt.Errorf("encrypt: %w", ratchet.ErrMessageKeyMissing)
	}

	ivAndCiphertext, err := crypto.AEADSeal(mk, plaintext)
	if err != nil {
		return nil, err
	}
	inner := wire.MarshalInner(domain.InnerEnvelope{
		SenderPublicKey: sender,
		KeyIndex:        r.KeyIndex,
		IVAndCiphertext: ivAndCiphertext,
	})

	eph, ct, err := crypto.Seal(inner, group)
	if err != nil {
		return nil, err
	}
	c.log.Tracef("Encrypted %d bytes for group %s at index %d", len(plaintext), group, r.KeyIndex)
	return wire.MarshalOuter(domain.OuterEnvelope{
		EphemeralPublicKey: eph,
		Ciphertext:         ct,
	}), nil
}

// Decrypt opens a group message and returns its plaintext and sender. All
// failures are returned as *DecryptError.
func (c *Cipher) Decrypt(
	ctx context.Context,
	data []byte,
	group domain.X25519Public,
) ([]byte, domain.X25519Public, error) {
	fail := func(sender domain.X25519Public, err error) ([]byte, domain.X25519Public, error) {
		return nil, domain.X25519Public{}, &DecryptError{Group: group, Sender: sender, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(domain.X25519Public{}, err)
	}

	// Only groups we are part of are decryptable.
	meta, ok, err := c.groups.LoadGroup(group)
	if err != nil {
		return fail(domain.X25519Public{}, err)
	}
	if !ok {
		return fail(domain.X25519Public{}, ErrUnknownGroup)
	}
	if !meta.IsMember(c.local) {
		return fail(domain.X25519Public{}, ErrNotMember)
	}
	if len(data) == 0 {
		return fail(domain.X25519Public{}, ErrEmptyPayload)
	}
	priv, ok, err := c.groups.LoadGroupPrivateKey(group)
	if err != nil {
		return fail(domain.X25519Public{}, err)
	}
	if !ok {
		c.log.Errorf("Group %s has no private key although we are a member", group)
		return fail(domain.X25519Public{}, ErrNoGroupPrivateKey)
	}

	// Outer layer.
	outer, err := wire.UnmarshalOuter(data)
	if err != nil {
		return fail(domain.X25519Public{}, err)
	}
	innerBytes, err := crypto.Open(outer.Ciphertext, outer.EphemeralPublicKey, priv)
	crypto.Wipe(priv[:])
	if err != nil {
		return fail(domain.X25519Public{}, err)
	}
	inner, err := wire.UnmarshalInner(innerBytes)
	if err != nil {
		return fail(domain.X25519Public{}, err)
	}
	sender := inner.SenderPublicKey
	if sender == c.local {
		return fail(sender, ErrSelfSend)
	}

	// Inner layer.
	mk, err := c.ratchets.MessageKeyAt(group, sender, inner.KeyIndex)
	if err != nil {
		return fail(sender, err)
	}
	pt, err := crypto.AEADOpen(mk, inner.IVAndCiphertext)
	if err != nil {
		return fail(sender, err)
	}
	return pt, sender, nil
}
