package types

import "time"

// GroupMetadata is the locally persisted view of a closed group.
type GroupMetadata struct {
	PublicKey X25519Public
	Name      string
	Members   []X25519Public
	Admins    []X25519Public
	Updated   time.Time
	// RemovedAt is the send time, in unix milliseconds, of the latest
	// member removal. Chain keys sent before it belong to an old epoch.
	RemovedAt int64
}

// IsMember reports whether pk is in the member list.
func (g GroupMetadata) IsMember(pk X25519Public) bool { return contains(g.Members, pk) }

// IsAdmin reports whether pk is in the admin list.
func (g GroupMetadata) IsAdmin(pk X25519Public) bool { return contains(g.Admins, pk) }

func contains(list []X25519Public, pk X25519Public) bool {
	for _, v := range list {
		if v == pk {
			return true
		}
	}
	return false
}

// UpdateKind discriminates GroupUpdate variants.
type UpdateKind uint8

const (
	UpdateNew UpdateKind = iota + 1
	UpdateInfo
	UpdateChainKey
)

// String returns the wire name of the kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateNew:
		return "new"
	case UpdateInfo:
		return "info"
	case UpdateChainKey:
		return "chainKey"
	default:
		return "unknown"
	}
}

// GroupUpdate is a group control message.
//
//   - new:      GroupPublicKey, Name, GroupPrivateKey, SenderKeys, Members, Admins
//   - info:     GroupPublicKey, Name, SenderKeys (for added members), Members, Admins
//   - chainKey: GroupPublicKey, SenderKeys (exactly one, the sender's)
type GroupUpdate struct {
	Kind            UpdateKind
	GroupPublicKey  X25519Public
	Name            string
	GroupPrivateKey X25519Private
	SenderKeys      []SenderKey
	Members         []X25519Public
	Admins          []X25519Public

	// Sent is the send time of the enclosing message in unix milliseconds.
	// It is filled in by the receiver and never encoded.
	Sent int64
}

// InfoEventKind classifies a recorded group event.
type InfoEventKind string

const (
	EventCreated        InfoEventKind = "created"
	EventJoined         InfoEventKind = "joined"
	EventUpdated        InfoEventKind = "updated"
	EventMembersAdded   InfoEventKind = "members-added"
	EventMembersRemoved InfoEventKind = "members-removed"
	EventUserLeft       InfoEventKind = "user-left"
	EventRenamed        InfoEventKind = "renamed"
)

// InfoEvent is a user visible record of a lifecycle change.
type InfoEvent struct {
	Kind    InfoEventKind
	Group   X25519Public
	Actor   X25519Public
	Members []X25519Public
	Name    string
	Time    time.Time
}
