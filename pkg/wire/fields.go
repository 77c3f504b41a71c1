package wire

import (
	"fmt"
	"maps"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded tag/value pair. Only the member matching Type is set.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// String returns the field payload as a string. It is only meaningful for
// BytesType fields.
func (f Field) String() string { return string(f.Bytes) }

// RangeFields calls fn for every top-level field in b, in wire order.
// Group fields are skipped.
func RangeFields(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendString appends s as a length-delimited field.
func AppendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendBytes appends v as a length-delimited field.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendVarint appends v as a varint field.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendSigned appends v as a zigzag encoded varint field.
func AppendSigned(b []byte, num protowire.Number, v int64) []byte {
	return AppendVarint(b, num, protowire.EncodeZigZag(v))
}

// AppendBool appends v as a varint field holding 0 or 1.
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	return AppendVarint(b, num, protowire.EncodeBool(v))
}

// AppendStringMap appends one length-delimited entry per key in m, sorted by
// key. Each entry holds the key in field 1 and the value in field 2.
func AppendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		var entry []byte
		entry = AppendString(entry, 1, k)
		entry = AppendString(entry, 2, m[k])
		b = AppendBytes(b, num, entry)
	}
	return b
}

// ConsumeStringMapEntry decodes an entry written by AppendStringMap into m.
// Duplicate keys are rejected.
func ConsumeStringMapEntry(entry []byte, m map[string]string) error {
	var key, value string
	var hasKey bool
	err := RangeFields(entry, func(f Field) error {
		if f.Type != protowire.BytesType {
			return fmt.Errorf("%w: map entry field %d", ErrWireType, f.Num)
		}
		switch f.Num {
		case 1:
			key, hasKey = f.String(), true
		case 2:
			value = f.String()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !hasKey {
		return fmt.Errorf("%w: map entry without key", ErrMalformed)
	}
	if _, dup := m[key]; dup {
		return fmt.Errorf("%w: duplicate map key %q", ErrMalformed, key)
	}
	m[key] = value
	return nil
}

// EncodeStringMap encodes m as a standalone message.
func EncodeStringMap(m map[string]string) []byte {
	return AppendStringMap(nil, 1, m)
}

// DecodeStringMap decodes a message produced by EncodeStringMap. An empty
// input yields an empty, non-nil map.
func DecodeStringMap(b []byte) (map[string]string, error) {
	m := make(map[string]string)
	err := RangeFields(b, func(f Field) error {
		if f.Num != 1 || f.Type != protowire.BytesType {
			return nil
		}
		return ConsumeStringMapEntry(f.Bytes, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func expect(f Field, typ protowire.Type) error {
	if f.Type != typ {
		return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrWireType, f.Num, f.Type, typ)
	}
	return nil
}
