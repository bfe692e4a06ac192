package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"closedgroups/internal/domain"
)

const (
	contentKind      protowire.Number = 2
	contentText      protowire.Number = 3
	contentUpdate    protowire.Number = 4
	contentTimestamp protowire.Number = 5

	directSender    protowire.Number = 2
	directUpdate    protowire.Number = 3
	directTimestamp protowire.Number = 4
	directAuth      protowire.Number = 5
)

// MarshalContent encodes the plaintext of a group message.
func MarshalContent(c domain.Content) []byte {
	e := newEncoder()
	e.varint(contentKind, uint64(c.Kind))
	switch c.Kind {
	case domain.ContentText:
		e.str(contentText, c.Text)
	case domain.ContentUpdate:
		e.bytes(contentUpdate, MarshalUpdate(c.Update))
	}
	e.varint(contentTimestamp, protowire.EncodeZigZag(c.Timestamp))
	return e.b
}

// UnmarshalContent decodes the plaintext of a group message.
func UnmarshalContent(b []byte) (domain.Content, error) {
	var (
		c          domain.Content
		haveUpdate bool
	)
	err := decode(b, "content", func(f field) error {
		switch f.num {
		case contentKind:
			v, err := f.varint()
			if err != nil {
				return err
			}
			c.Kind = domain.ContentKind(v)
		case contentText:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			c.Text = string(b)
		case contentUpdate:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			if c.Update, err = UnmarshalUpdate(b); err != nil {
				return err
			}
			haveUpdate = true
		case contentTimestamp:
			v, err := f.varint()
			if err != nil {
				return err
			}
			c.Timestamp = protowire.DecodeZigZag(v)
		}
		return nil
	})
	if err != nil {
		return domain.Content{}, err
	}
	// Kinds this client does not know are returned for the caller to skip.
	switch c.Kind {
	case 0:
		return domain.Content{}, malformed("content: missing kind")
	case domain.ContentUpdate:
		if !haveUpdate {
			return domain.Content{}, malformed("content: update kind without update")
		}
	}
	return c, nil
}

// MarshalDirect encodes a direct control message including its
// authenticator.
func MarshalDirect(d domain.DirectMessage) []byte {
	e := encodeDirect(d)
	if len(d.Auth) > 0 {
		e.bytes(directAuth, d.Auth)
	}
	return e.b
}

// DirectAuthData returns the bytes a direct message authenticator covers:
// the encoding of d without its Auth field.
func DirectAuthData(d domain.DirectMessage) []byte {
	return encodeDirect(d).b
}

func encodeDirect(d domain.DirectMessage) *encoder {
	e := newEncoder()
	e.bytes(directSender, d.Sender[:])
	e.bytes(directUpdate, MarshalUpdate(d.Update))
	e.varint(directTimestamp, protowire.EncodeZigZag(d.Timestamp))
	return e
}

// UnmarshalDirect decodes a direct control message.
func UnmarshalDirect(b []byte) (domain.DirectMessage, error) {
	var (
		d                      domain.DirectMessage
		haveSender, haveUpdate bool
	)
	err := decode(b, "direct message", func(f field) error {
		switch f.num {
		case directSender:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			d.Sender, haveSender = pk, true
		case directUpdate:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			if d.Update, err = UnmarshalUpdate(b); err != nil {
				return err
			}
			haveUpdate = true
		case directTimestamp:
			v, err := f.varint()
			if err != nil {
				return err
			}
			d.Timestamp = protowire.DecodeZigZag(v)
		case directAuth:
			auth, err := f.copyBytes()
			if err != nil {
				return err
			}
			d.Auth = auth
		}
		return nil
	})
	if err != nil {
		return domain.DirectMessage{}, err
	}
	if !haveSender || !haveUpdate {
		return domain.DirectMessage{}, malformed("direct message: missing fields")
	}
	return d, nil
}
