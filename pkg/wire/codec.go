package wire

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrUnsupportedType is returned for values the codec cannot represent,
	// such as pointers, interfaces, channels, functions and complex numbers.
	ErrUnsupportedType = errors.New("wire: unsupported type")
	// ErrMalformed is returned for input that is not valid wire data.
	ErrMalformed = errors.New("wire: malformed data")
	// ErrWireType is returned when a field's wire type does not match the
	// Go type it decodes into.
	ErrWireType = errors.New("wire: wire type mismatch")
	// ErrOverflow is returned when a decoded number does not fit its target.
	ErrOverflow = errors.New("wire: value overflows target type")
)

const valueField protowire.Number = 1

// TypeName returns the stable name used to identify T across processes:
// the package path and name for named types, the type literal otherwise.
func TypeName[T any]() string {
	t := reflect.TypeFor[T]()
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// CheckType reports whether values of T can be encoded.
func CheckType[T any]() error {
	return checkType(reflect.TypeFor[T]())
}

func checkType(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Array:
		return checkType(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if err := checkType(sf.Type); err != nil {
				return fmt.Errorf("%s.%s: %w", t, sf.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// Encode encodes v as a message holding the value in field 1. Structs are
// nested messages whose exported fields are numbered by position starting at
// 1; signed integers are zigzag encoded.
func Encode[T any](v T) ([]byte, error) {
	return appendValue(nil, valueField, reflect.ValueOf(&v).Elem())
}

// Decode is the inverse of Encode.
func Decode[T any](b []byte) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if err := checkType(rv.Type()); err != nil {
		return out, err
	}
	seen := false
	err := RangeFields(b, func(f Field) error {
		if f.Num != valueField {
			return nil
		}
		seen = true
		return decodeValue(f, rv)
	})
	if err != nil {
		return out, err
	}
	if !seen {
		return out, fmt.Errorf("%w: missing value field", ErrMalformed)
	}
	return out, nil
}

func appendValue(b []byte, num protowire.Number, v reflect.Value) ([]byte, error) {
	switch v.Kind() {
	case reflect.Bool:
		return AppendBool(b, num, v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return AppendSigned(b, num, v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return AppendVarint(b, num, v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		b = protowire.AppendTag(b, num, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(v.Float())), nil
	case reflect.String:
		return AppendString(b, num, v.String()), nil
	case reflect.Array:
		var inner []byte
		var err error
		for i := range v.Len() {
			if inner, err = appendValue(inner, valueField, v.Index(i)); err != nil {
				return nil, err
			}
		}
		return AppendBytes(b, num, inner), nil
	case reflect.Struct:
		inner, err := appendStruct(nil, v)
		if err != nil {
			return nil, err
		}
		return AppendBytes(b, num, inner), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type())
	}
}

func appendStruct(b []byte, v reflect.Value) ([]byte, error) {
	t := v.Type()
	var err error
	for i := range t.NumField() {
		if !t.Field(i).IsExported() {
			continue
		}
		if b, err = appendValue(b, protowire.Number(i+1), v.Field(i)); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, t.Field(i).Name, err)
		}
	}
	return b, nil
}

func decodeValue(f Field, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if err := expect(f, protowire.VarintType); err != nil {
			return err
		}
		v.SetBool(protowire.DecodeBool(f.Varint))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if err := expect(f, protowire.VarintType); err != nil {
			return err
		}
		n := protowire.DecodeZigZag(f.Varint)
		if v.OverflowInt(n) {
			return fmt.Errorf("%w: %d into %s", ErrOverflow, n, v.Type())
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if err := expect(f, protowire.VarintType); err != nil {
			return err
		}
		if v.OverflowUint(f.Varint) {
			return fmt.Errorf("%w: %d into %s", ErrOverflow, f.Varint, v.Type())
		}
		v.SetUint(f.Varint)
	case reflect.Float32, reflect.Float64:
		if err := expect(f, protowire.Fixed64Type); err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(f.Fixed64))
	case reflect.String:
		if err := expect(f, protowire.BytesType); err != nil {
			return err
		}
		v.SetString(string(f.Bytes))
	case reflect.Array:
		if err := expect(f, protowire.BytesType); err != nil {
			return err
		}
		i := 0
		return RangeFields(f.Bytes, func(elem Field) error {
			if elem.Num != valueField {
				return nil
			}
			if i >= v.Len() {
				return fmt.Errorf("%w: too many elements for %s", ErrMalformed, v.Type())
			}
			err := decodeValue(elem, v.Index(i))
			i++
			return err
		})
	case reflect.Struct:
		if err := expect(f, protowire.BytesType); err != nil {
			return err
		}
		return decodeStruct(f.Bytes, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type())
	}
	return nil
}

func decodeStruct(b []byte, v reflect.Value) error {
	t := v.Type()
	return RangeFields(b, func(f Field) error {
		idx := int(f.Num) - 1
		if idx < 0 || idx >= t.NumField() || !t.Field(idx).IsExported() {
			return nil // unknown field
		}
		if err := decodeValue(f, v.Field(idx)); err != nil {
			return fmt.Errorf("%s.%s: %w", t, t.Field(idx).Name, err)
		}
		return nil
	})
}
