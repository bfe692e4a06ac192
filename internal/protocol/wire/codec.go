package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"closedgroups/internal/domain"
)

// Version is the current encoding version written by this package.
const Version = 1

const fieldVersion protowire.Number = 1

var (
	// ErrMalformed is returned for input that cannot be decoded.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrUnsupportedVersion is returned for input written by a newer encoder.
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
)

// field is one decoded tag-value pair.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// parse splits b into fields without interpreting them.
func parse(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, malformed("field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

// decode parses a versioned message and calls fn for every field after the
// version. Fields fn does not recognise must be ignored by fn.
func decode(b []byte, what string, fn func(f field) error) error {
	if len(b) == 0 {
		return malformed("%s: empty", what)
	}
	fields, err := parse(b)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if len(fields) == 0 || fields[0].num != fieldVersion || fields[0].typ != protowire.VarintType {
		return malformed("%s: missing version", what)
	}
	if v := fields[0].v; v == 0 || v > Version {
		return fmt.Errorf("%s: %w %d", what, ErrUnsupportedVersion, v)
	}
	for _, f := range fields[1:] {
		if err := fn(f); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	return nil
}

// decodeEmbedded parses an unversioned nested message.
func decodeEmbedded(b []byte, fn func(f field) error) error {
	fields, err := parse(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, malformed("field %d: want bytes", f.num)
	}
	return f.b, nil
}

func (f field) varint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, malformed("field %d: want varint", f.num)
	}
	return f.v, nil
}

func (f field) u32() (uint32, error) {
	v, err := f.varint()
	if err != nil {
		return 0, err
	}
	if v > 1<<32-1 {
		return 0, malformed("field %d: overflows uint32", f.num)
	}
	return uint32(v), nil
}

func (f field) publicKey() (domain.X25519Public, error) {
	b, err := f.bytes()
	if err != nil {
		return domain.X25519Public{}, err
	}
	pk, err := domain.PublicFromBytes(b)
	if err != nil {
		return pk, malformed("field %d: %v", f.num, err)
	}
	return pk, nil
}

// copyBytes detaches decoded bytes from the input buffer.
func (f field) copyBytes() ([]byte, error) {
	b, err := f.bytes()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// encoder appends fields to a buffer.
type encoder struct{ b []byte }

func newEncoder() *encoder {
	e := &encoder{}
	e.varint(fieldVersion, Version)
	return e
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) str(num protowire.Number, v string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) keys(num protowire.Number, keys []domain.X25519Public) {
	for _, k := range keys {
		e.bytes(num, k[:])
	}
}
