package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"closedgroups/internal/domain"
)

const (
	updateKind       protowire.Number = 2
	updateGroup      protowire.Number = 3
	updateName       protowire.Number = 4
	updatePrivateKey protowire.Number = 5
	updateSenderKeys protowire.Number = 6
	updateMembers    protowire.Number = 7
	updateAdmins     protowire.Number = 8

	senderKeyChainKey  protowire.Number = 1
	senderKeyKeyIndex  protowire.Number = 2
	senderKeyPublicKey protowire.Number = 3
)

// chainKeySize is the length of every chain key.
const chainKeySize = 32

// MarshalUpdate encodes a group control message.
func MarshalUpdate(u domain.GroupUpdate) []byte {
	e := newEncoder()
	e.varint(updateKind, uint64(u.Kind))
	e.bytes(updateGroup, u.GroupPublicKey[:])
	if u.Name != "" {
		e.str(updateName, u.Name)
	}
	if u.GroupPrivateKey != (domain.X25519Private{}) {
		e.bytes(updatePrivateKey, u.GroupPrivateKey[:])
	}
	for _, sk := range u.SenderKeys {
		e.bytes(updateSenderKeys, marshalSenderKey(sk))
	}
	e.keys(updateMembers, u.Members)
	e.keys(updateAdmins, u.Admins)
	return e.b
}

func marshalSenderKey(sk domain.SenderKey) []byte {
	var b []byte
	b = protowire.AppendTag(b, senderKeyChainKey, protowire.BytesType)
	b = protowire.AppendBytes(b, sk.ChainKey)
	b = protowire.AppendTag(b, senderKeyKeyIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(sk.KeyIndex))
	if !sk.PublicKey.IsZero() {
		b = protowire.AppendTag(b, senderKeyPublicKey, protowire.BytesType)
		b = protowire.AppendBytes(b, sk.PublicKey[:])
	}
	return b
}

func unmarshalSenderKey(b []byte) (domain.SenderKey, error) {
	var sk domain.SenderKey
	err := decodeEmbedded(b, func(f field) (err error) {
		switch f.num {
		case senderKeyChainKey:
			sk.ChainKey, err = f.copyBytes()
		case senderKeyKeyIndex:
			sk.KeyIndex, err = f.u32()
		case senderKeyPublicKey:
			sk.PublicKey, err = f.publicKey()
		}
		return err
	})
	if err != nil {
		return domain.SenderKey{}, err
	}
	if len(sk.ChainKey) != chainKeySize {
		return domain.SenderKey{}, malformed("sender key: chain key is %d bytes", len(sk.ChainKey))
	}
	return sk, nil
}

// UnmarshalUpdate decodes a group control message and checks the fields
// required by its kind.
func UnmarshalUpdate(b []byte) (domain.GroupUpdate, error) {
	var (
		u         domain.GroupUpdate
		haveGroup bool
	)
	err := decode(b, "group update", func(f field) error {
		switch f.num {
		case updateKind:
			v, err := f.varint()
			if err != nil {
				return err
			}
			u.Kind = domain.UpdateKind(v)
		case updateGroup:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			u.GroupPublicKey, haveGroup = pk, true
		case updateName:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			u.Name = string(b)
		case updatePrivateKey:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			if len(b) != len(u.GroupPrivateKey) {
				return malformed("private key is %d bytes", len(b))
			}
			copy(u.GroupPrivateKey[:], b)
		case updateSenderKeys:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			sk, err := unmarshalSenderKey(b)
			if err != nil {
				return err
			}
			u.SenderKeys = append(u.SenderKeys, sk)
		case updateMembers:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			u.Members = append(u.Members, pk)
		case updateAdmins:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			u.Admins = append(u.Admins, pk)
		}
		return nil
	})
	if err != nil {
		return domain.GroupUpdate{}, err
	}
	if !haveGroup {
		return domain.GroupUpdate{}, malformed("group update: missing group public key")
	}
	switch u.Kind {
	case domain.UpdateNew:
		if u.GroupPrivateKey == (domain.X25519Private{}) {
			return domain.GroupUpdate{}, malformed("group update: new without private key")
		}
		if len(u.Members) == 0 {
			return domain.GroupUpdate{}, malformed("group update: new without members")
		}
	case domain.UpdateInfo:
		if len(u.Members) == 0 {
			return domain.GroupUpdate{}, malformed("group update: info without members")
		}
	case domain.UpdateChainKey:
		if len(u.SenderKeys) != 1 {
			return domain.GroupUpdate{}, malformed("group update: chainKey carries %d sender keys", len(u.SenderKeys))
		}
	default:
		return domain.GroupUpdate{}, malformed("group update: unknown kind %d", u.Kind)
	}
	return u, nil
}
