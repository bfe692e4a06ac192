package lifecycle

import "errors"

var (
	// ErrUnauthorizedUpdate is returned for updates the sender may not make.
	ErrUnauthorizedUpdate = errors.New("unauthorized group update")
	// ErrUnknownGroup is returned for a group with no local metadata.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrNotMember is returned when a key that must be a member is not.
	ErrNotMember = errors.New("not a group member")
	// ErrMixedRemoval is returned when the local user is removed together
	// with other members.
	ErrMixedRemoval = errors.New("cannot leave and remove others at once")
	// ErrNoChange is returned for operations that would not change the group.
	ErrNoChange = errors.New("group unchanged")
	// ErrEmptyName is returned when a group name is blank.
	ErrEmptyName = errors.New("group name required")
	// ErrNoGroupPrivateKey is returned when a joined group has no private key.
	ErrNoGroupPrivateKey = errors.New("missing group private key")
	// ErrInvalidUpdate is returned for updates that are internally inconsistent.
	ErrInvalidUpdate = errors.New("invalid group update")
	// ErrStaleUpdate is returned for updates older than the state they
	// would overwrite, such as a replayed inbox after a restart.
	ErrStaleUpdate = errors.New("stale group update")
)
