package types

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Node is a storage server that holds messages for a public key.
type Node struct {
	URL string `json:"url"`
}

// RawEnvelope is an opaque message as returned by a storage node.
type RawEnvelope struct {
	Hash      string `json:"hash"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
}
