package domain

import (
	interfaces "closedgroups/internal/domain/interfaces"
	types "closedgroups/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Fingerprint   = types.Fingerprint
	Identity      = types.Identity
	X25519Public  = types.X25519Public
	X25519Private = types.X25519Private
	Node          = types.Node
	RawEnvelope   = types.RawEnvelope
	MessageKey    = types.MessageKey
	Ratchet       = types.Ratchet
	SenderKey     = types.SenderKey
	GroupMetadata = types.GroupMetadata
	UpdateKind    = types.UpdateKind
	GroupUpdate   = types.GroupUpdate
	InfoEventKind = types.InfoEventKind
	InfoEvent     = types.InfoEvent
	OuterEnvelope = types.OuterEnvelope
	InnerEnvelope = types.InnerEnvelope
	ContentKind   = types.ContentKind
	Content       = types.Content
	DirectMessage = types.DirectMessage
	GroupMessage  = types.GroupMessage
	Session       = types.Session
)

// Update and content kinds.
const (
	UpdateNew      = types.UpdateNew
	UpdateInfo     = types.UpdateInfo
	UpdateChainKey = types.UpdateChainKey

	ContentText   = types.ContentText
	ContentUpdate = types.ContentUpdate
)

// Event kinds.
const (
	EventCreated        = types.EventCreated
	EventJoined         = types.EventJoined
	EventUpdated        = types.EventUpdated
	EventMembersAdded   = types.EventMembersAdded
	EventMembersRemoved = types.EventMembersRemoved
	EventUserLeft       = types.EventUserLeft
	EventRenamed        = types.EventRenamed
)

// Key helpers.
var (
	ParseX25519Public = types.ParseX25519Public
	PublicFromBytes   = types.PublicFromBytes
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService    = interfaces.IdentityService
	SessionEstablisher = interfaces.SessionEstablisher
	UpdateDispatcher   = interfaces.UpdateDispatcher
	UpdateHandler      = interfaces.UpdateHandler
	EnvelopeHandler    = interfaces.EnvelopeHandler
	EventSink          = interfaces.EventSink
	MessageSink        = interfaces.MessageSink
	NetworkLayer       = interfaces.NetworkLayer
	IdentityStore      = interfaces.IdentityStore
	KeyValueStore      = interfaces.KeyValueStore
	RatchetStore       = interfaces.RatchetStore
	GroupStore         = interfaces.GroupStore
	SessionStore       = interfaces.SessionStore
)
