package remote

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/petrijr/statum/pkg/wire"
)

// ServiceName is the first path segment of every call.
const ServiceName = "statum.StateEngine"

// ContentType is sent and expected on every request and response body.
const ContentType = "application/vnd.statum+proto"

// Headers carried on each call.
const (
	HeaderStateType = "Statum-State-Type"
	HeaderInputType = "Statum-Input-Type"
	// HeaderTimeout carries the caller's remaining deadline in milliseconds.
	HeaderTimeout   = "Statum-Timeout"
	HeaderErrorKind = "Statum-Error-Kind"
)

// Method names.
const (
	MethodCreateMachine   = "CreateMachine"
	MethodGetMachine      = "GetMachine"
	MethodDeleteMachine   = "DeleteMachine"
	MethodGetSchematic    = "GetSchematic"
	MethodStoreSchematic  = "StoreSchematic"
	MethodSendInput       = "SendInput"
	MethodGetCurrentState = "GetCurrentState"
	MethodGetMetadata     = "GetMetadata"
)

func bytesOf(f wire.Field) ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d", wire.ErrWireType, f.Num)
	}
	return f.Bytes, nil
}

func stringOf(f wire.Field) (string, error) {
	b, err := bytesOf(f)
	return string(b), err
}

// createMachineRequest creates a machine from an inline schematic (field 1)
// or from a stored one by name (field 2).
type createMachineRequest struct {
	Schematic     []byte
	SchematicName string
	MachineID     string
	Metadata      map[string]string
}

func (m createMachineRequest) marshal() []byte {
	var b []byte
	if len(m.Schematic) > 0 {
		b = wire.AppendBytes(b, 1, m.Schematic)
	}
	if m.SchematicName != "" {
		b = wire.AppendString(b, 2, m.SchematicName)
	}
	if m.MachineID != "" {
		b = wire.AppendString(b, 3, m.MachineID)
	}
	return wire.AppendStringMap(b, 4, m.Metadata)
}

func (m *createMachineRequest) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Schematic, err = bytesOf(f)
		case 2:
			m.SchematicName, err = stringOf(f)
		case 3:
			m.MachineID, err = stringOf(f)
		case 4:
			if m.Metadata == nil {
				m.Metadata = make(map[string]string)
			}
			var entry []byte
			if entry, err = bytesOf(f); err == nil {
				err = wire.ConsumeStringMapEntry(entry, m.Metadata)
			}
		}
		return err
	})
}

// machineRequest addresses a single machine.
type machineRequest struct {
	MachineID string
}

func (m machineRequest) marshal() []byte {
	return wire.AppendString(nil, 1, m.MachineID)
}

func (m *machineRequest) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.MachineID, err = stringOf(f)
		}
		return err
	})
}

type schematicRequest struct {
	Name string
}

func (m schematicRequest) marshal() []byte {
	return wire.AppendString(nil, 1, m.Name)
}

func (m *schematicRequest) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Name, err = stringOf(f)
		}
		return err
	})
}

// schematicMessage carries an encoded schematic in both directions.
type schematicMessage struct {
	Schematic []byte
}

func (m schematicMessage) marshal() []byte {
	return wire.AppendBytes(nil, 1, m.Schematic)
}

func (m *schematicMessage) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Schematic, err = bytesOf(f)
		}
		return err
	})
}

type machineResponse struct {
	MachineID string
	Schematic []byte
}

func (m machineResponse) marshal() []byte {
	b := wire.AppendString(nil, 1, m.MachineID)
	if len(m.Schematic) > 0 {
		b = wire.AppendBytes(b, 2, m.Schematic)
	}
	return b
}

func (m *machineResponse) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.MachineID, err = stringOf(f)
		case 2:
			m.Schematic, err = bytesOf(f)
		}
		return err
	})
}

type sendInputRequest struct {
	MachineID string
	Input     []byte
	Parameter string
}

func (m sendInputRequest) marshal() []byte {
	b := wire.AppendString(nil, 1, m.MachineID)
	b = wire.AppendBytes(b, 2, m.Input)
	if m.Parameter != "" {
		b = wire.AppendString(b, 3, m.Parameter)
	}
	return b
}

func (m *sendInputRequest) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.MachineID, err = stringOf(f)
		case 2:
			m.Input, err = bytesOf(f)
		case 3:
			m.Parameter, err = stringOf(f)
		}
		return err
	})
}

type stateResponse struct {
	State []byte
}

func (m stateResponse) marshal() []byte {
	return wire.AppendBytes(nil, 1, m.State)
}

func (m *stateResponse) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.State, err = bytesOf(f)
		}
		return err
	})
}

// errorResponse is the payload of an error frame. Reason optionally names a
// more specific sentinel than Kind.
type errorResponse struct {
	Kind      string
	Message   string
	MachineID string
	Reason    string
}

func (m errorResponse) marshal() []byte {
	b := wire.AppendString(nil, 1, m.Kind)
	b = wire.AppendString(b, 2, m.Message)
	if m.MachineID != "" {
		b = wire.AppendString(b, 3, m.MachineID)
	}
	if m.Reason != "" {
		b = wire.AppendString(b, 4, m.Reason)
	}
	return b
}

func (m *errorResponse) unmarshal(b []byte) error {
	return wire.RangeFields(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			m.Kind, err = stringOf(f)
		case 2:
			m.Message, err = stringOf(f)
		case 3:
			m.MachineID, err = stringOf(f)
		case 4:
			m.Reason, err = stringOf(f)
		}
		return err
	})
}
