package types

// OuterEnvelope is the group-level wrapper: an inner envelope sealed to the
// group public key.
type OuterEnvelope struct {
	EphemeralPublicKey X25519Public
	Ciphertext         []byte
}

// InnerEnvelope carries the sender-key ciphertext and the index of the key
// that produced it.
type InnerEnvelope struct {
	SenderPublicKey X25519Public
	KeyIndex        uint32
	IVAndCiphertext []byte
}

// ContentKind discriminates Content payloads.
type ContentKind uint8

const (
	ContentText ContentKind = iota + 1
	ContentUpdate
)

// Content is the plaintext carried inside a group message.
type Content struct {
	Kind      ContentKind
	Text      string
	Update    GroupUpdate
	Timestamp int64
}

// DirectMessage is a control message delivered to one member's inbox.
// Auth binds the payload to the long-term keys of sender and recipient.
type DirectMessage struct {
	Sender    X25519Public
	Update    GroupUpdate
	Timestamp int64
	Auth      []byte
}

// GroupMessage is a decrypted text message handed to the application.
type GroupMessage struct {
	Group     X25519Public
	Sender    X25519Public
	Text      string
	Timestamp int64
}
