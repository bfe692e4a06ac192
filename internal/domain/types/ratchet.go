package types

// MessageKey is a derived per-message key together with the index it was
// produced for.
type MessageKey struct {
	Index uint32
	Key   []byte
}

// Ratchet is the symmetric sender-key chain for one (group, sender) pair.
//
// MessageKeys holds every key derived locally, ordered by Index. A ratchet
// imported from a SenderKey snapshot starts with no message keys, so the
// first entry may have an Index greater than 1.
type Ratchet struct {
	ChainKey    []byte
	KeyIndex    uint32
	MessageKeys []MessageKey
	// Rotated is the send time, in unix milliseconds, of the chainKey
	// update that installed this ratchet. Zero for any other origin.
	Rotated int64
}

// SenderKey is the shareable snapshot of a ratchet: chain key and index,
// never the message-key history. PublicKey names the sender the chain
// belongs to.
type SenderKey struct {
	ChainKey  []byte
	KeyIndex  uint32
	PublicKey X25519Public
}
