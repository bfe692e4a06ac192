package types

// Session records that a 1:1 channel with a peer has been established.
type Session struct {
	Peer       X25519Public `json:"peer"`
	CreatedUTC int64        `json:"created_utc"`
}
