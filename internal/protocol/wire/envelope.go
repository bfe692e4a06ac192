package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"closedgroups/internal/domain"
)

const (
	outerEphemeral  protowire.Number = 2
	outerCiphertext protowire.Number = 3

	innerSender     protowire.Number = 2
	innerKeyIndex   protowire.Number = 3
	innerCiphertext protowire.Number = 4
)

// MarshalOuter encodes the group-level wrapper.
func MarshalOuter(env domain.OuterEnvelope) []byte {
	e := newEncoder()
	e.bytes(outerEphemeral, env.EphemeralPublicKey[:])
	e.bytes(outerCiphertext, env.Ciphertext)
	return e.b
}

// UnmarshalOuter decodes the group-level wrapper.
func UnmarshalOuter(b []byte) (domain.OuterEnvelope, error) {
	var (
		env     domain.OuterEnvelope
		haveKey bool
	)
	err := decode(b, "outer envelope", func(f field) (err error) {
		switch f.num {
		case outerEphemeral:
			env.EphemeralPublicKey, err = f.publicKey()
			haveKey = true
		case outerCiphertext:
			env.Ciphertext, err = f.copyBytes()
		}
		return err
	})
	if err != nil {
		return domain.OuterEnvelope{}, err
	}
	if !haveKey || len(env.Ciphertext) == 0 {
		return domain.OuterEnvelope{}, malformed("outer envelope: missing fields")
	}
	return env, nil
}

// MarshalInner encodes the sender-key layer.
func MarshalInner(env domain.InnerEnvelope) []byte {
	e := newEncoder()
	e.bytes(innerSender, env.SenderPublicKey[:])
	e.varint(innerKeyIndex, uint64(env.KeyIndex))
	e.bytes(innerCiphertext, env.IVAndCiphertext)
	return e.b
}

// UnmarshalInner decodes the sender-key layer.
func UnmarshalInner(b []byte) (domain.InnerEnvelope, error) {
	var (
		env        domain.InnerEnvelope
		haveSender bool
	)
	err := decode(b, "inner envelope", func(f field) (err error) {
		switch f.num {
		case innerSender:
			env.SenderPublicKey, err = f.publicKey()
			haveSender = true
		case innerKeyIndex:
			env.KeyIndex, err = f.u32()
		case innerCiphertext:
			env.IVAndCiphertext, err = f.copyBytes()
		}
		return err
	})
	if err != nil {
		return domain.InnerEnvelope{}, err
	}
	if !haveSender || len(env.IVAndCiphertext) == 0 {
		return domain.InnerEnvelope{}, malformed("inner envelope: missing fields")
	}
	return env, nil
}
