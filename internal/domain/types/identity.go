package types

// Identity holds your long-term X25519 key pair. The public half is your
// member identifier in every group.
type Identity struct {
	XPub  X25519Public  `json:"xpub"`
	XPriv X25519Private `json:"xpriv"`
}
