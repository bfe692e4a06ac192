package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"closedgroups/internal/domain"
)

const (
	ratchetChainKey    protowire.Number = 2
	ratchetKeyIndex    protowire.Number = 3
	ratchetMessageKeys protowire.Number = 4
	ratchetRotated     protowire.Number = 5

	messageKeyIndex protowire.Number = 1
	messageKeyKey   protowire.Number = 2

	groupPublicKey protowire.Number = 2
	groupName      protowire.Number = 3
	groupMembers   protowire.Number = 4
	groupAdmins    protowire.Number = 5
	groupUpdated   protowire.Number = 6
	groupRemovedAt protowire.Number = 7
)

// MarshalRatchet encodes a ratchet for persistence.
func MarshalRatchet(r domain.Ratchet) []byte {
	e := newEncoder()
	e.bytes(ratchetChainKey, r.ChainKey)
	e.varint(ratchetKeyIndex, uint64(r.KeyIndex))
	for _, mk := range r.MessageKeys {
		var b []byte
		b = protowire.AppendTag(b, messageKeyIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(mk.Index))
		b = protowire.AppendTag(b, messageKeyKey, protowire.BytesType)
		b = protowire.AppendBytes(b, mk.Key)
		e.bytes(ratchetMessageKeys, b)
	}
	if r.Rotated != 0 {
		e.varint(ratchetRotated, protowire.EncodeZigZag(r.Rotated))
	}
	return e.b
}

// UnmarshalRatchet decodes a persisted ratchet.
func UnmarshalRatchet(b []byte) (domain.Ratchet, error) {
	var r domain.Ratchet
	err := decode(b, "ratchet", func(f field) (err error) {
		switch f.num {
		case ratchetChainKey:
			r.ChainKey, err = f.copyBytes()
		case ratchetKeyIndex:
			r.KeyIndex, err = f.u32()
		case ratchetMessageKeys:
			var raw []byte
			if raw, err = f.bytes(); err != nil {
				return err
			}
			var mk domain.MessageKey
			err = decodeEmbedded(raw, func(f field) (err error) {
				switch f.num {
				case messageKeyIndex:
					mk.Index, err = f.u32()
				case messageKeyKey:
					mk.Key, err = f.copyBytes()
				}
				return err
			})
			r.MessageKeys = append(r.MessageKeys, mk)
		case ratchetRotated:
			var v uint64
			if v, err = f.varint(); err != nil {
				return err
			}
			r.Rotated = protowire.DecodeZigZag(v)
		}
		return err
	})
	if err != nil {
		return domain.Ratchet{}, err
	}
	if len(r.ChainKey) != chainKeySize {
		return domain.Ratchet{}, malformed("ratchet: chain key is %d bytes", len(r.ChainKey))
	}
	return r, nil
}

// MarshalGroup encodes group metadata for persistence.
func MarshalGroup(g domain.GroupMetadata) []byte {
	e := newEncoder()
	e.bytes(groupPublicKey, g.PublicKey[:])
	e.str(groupName, g.Name)
	e.keys(groupMembers, g.Members)
	e.keys(groupAdmins, g.Admins)
	if !g.Updated.IsZero() {
		e.varint(groupUpdated, protowire.EncodeZigZag(g.Updated.UnixNano()))
	}
	if g.RemovedAt != 0 {
		e.varint(groupRemovedAt, protowire.EncodeZigZag(g.RemovedAt))
	}
	return e.b
}

// UnmarshalGroup decodes persisted group metadata.
func UnmarshalGroup(b []byte) (domain.GroupMetadata, error) {
	var g domain.GroupMetadata
	err := decode(b, "group", func(f field) error {
		switch f.num {
		case groupPublicKey:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			g.PublicKey = pk
		case groupName:
			b, err := f.bytes()
			if err != nil {
				return err
			}
			g.Name = string(b)
		case groupMembers:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			g.Members = append(g.Members, pk)
		case groupAdmins:
			pk, err := f.publicKey()
			if err != nil {
				return err
			}
			g.Admins = append(g.Admins, pk)
		case groupUpdated:
			v, err := f.varint()
			if err != nil {
				return err
			}
			g.Updated = time.Unix(0, protowire.DecodeZigZag(v))
		case groupRemovedAt:
			v, err := f.varint()
			if err != nil {
				return err
			}
			g.RemovedAt = protowire.DecodeZigZag(v)
		}
		return nil
	})
	if err != nil {
		return domain.GroupMetadata{}, err
	}
	return g, nil
}
