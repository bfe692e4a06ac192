package groupcipher

import (
	"errors"
	"fmt"

	"closedgroups/internal/domain"
)

var (
	// ErrUnknownGroup is returned for a group with no local metadata.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrNotMember is returned for a group the local user is not part of.
	ErrNotMember = errors.New("not a member of group")
	// ErrEmptyPayload is returned for a zero length message.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrNoGroupPrivateKey is returned when a group the local user belongs
	// to has no stored private key.
	ErrNoGroupPrivateKey = errors.New("missing group private key")
	// ErrSelfSend is returned for messages sent by the local user.
	ErrSelfSend = errors.New("message sent by self")
)

// DecryptError describes why a group message could not be decrypted.
// Sender is zero when the failure happened before the inner envelope was
// read.
type DecryptError struct {
	Group  domain.X25519Public
	Sender domain.X25519Public
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Sender.IsZero() {
		return fmt.Sprintf("decrypt group %s: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("decrypt group %s from %s: %v", e.Group, e.Sender, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }
