package wire

import (
	"fmt"
	"time"

	"github.com/petrijr/statum/pkg/api"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	stMachineID protowire.Number = 1
	stValue     protowire.Number = 2
	stInput     protowire.Number = 3
	stHasInput  protowire.Number = 4
	stParameter protowire.Number = 5
	stCommitTag protowire.Number = 6
	stUpdatedAt protowire.Number = 7
)

// EncodeState serialises a committed state.
func EncodeState[S, I comparable](st *api.State[S, I]) ([]byte, error) {
	value, err := Encode(st.Value)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	var b []byte
	b = AppendString(b, stMachineID, st.MachineID)
	b = AppendBytes(b, stValue, value)
	if st.HasInput {
		in, err := Encode(st.Input)
		if err != nil {
			return nil, fmt.Errorf("encode state input: %w", err)
		}
		b = AppendBytes(b, stInput, in)
		b = AppendBool(b, stHasInput, true)
	}
	if st.Parameter != "" {
		b = AppendString(b, stParameter, st.Parameter)
	}
	b = AppendString(b, stCommitTag, st.CommitTag)
	if !st.UpdatedAt.IsZero() {
		b = AppendSigned(b, stUpdatedAt, st.UpdatedAt.UnixNano())
	}
	return b, nil
}

// DecodeState deserialises a committed state. UpdatedAt is returned in UTC.
func DecodeState[S, I comparable](b []byte) (*api.State[S, I], error) {
	st := &api.State[S, I]{}
	var hasValue bool
	err := RangeFields(b, func(f Field) error {
		var err error
		switch f.Num {
		case stMachineID:
			if err = expect(f, protowire.BytesType); err == nil {
				st.MachineID = f.String()
			}
		case stValue:
			if err = expect(f, protowire.BytesType); err == nil {
				st.Value, err = Decode[S](f.Bytes)
				hasValue = true
			}
		case stInput:
			if err = expect(f, protowire.BytesType); err == nil {
				st.Input, err = Decode[I](f.Bytes)
			}
		case stHasInput:
			if err = expect(f, protowire.VarintType); err == nil {
				st.HasInput = protowire.DecodeBool(f.Varint)
			}
		case stParameter:
			if err = expect(f, protowire.BytesType); err == nil {
				st.Parameter = f.String()
			}
		case stCommitTag:
			if err = expect(f, protowire.BytesType); err == nil {
				st.CommitTag = f.String()
			}
		case stUpdatedAt:
			if err = expect(f, protowire.VarintType); err == nil {
				st.UpdatedAt = time.Unix(0, protowire.DecodeZigZag(f.Varint)).UTC()
			}
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if !hasValue {
		return nil, fmt.Errorf("decode state: %w: missing state value", ErrMalformed)
	}
	return st, nil
}
