package persistence

import (
	"context"
	"time"
)

// Stores work on encoded bytes so that one store instance serves machines
// of any state and input type. They return the api sentinels directly:
// api.ErrMachineNotFound, api.ErrMachineExists, api.ErrSchematicNotFound and
// api.ErrConcurrencyConflict.

// MachineRecord is everything persisted when a machine is created.
type MachineRecord struct {
	ID            string
	SchematicName string
	// Schematic is the encoded schematic the machine runs, stored with the
	// machine so later changes to a stored schematic do not affect it.
	Schematic    []byte
	InitialState []byte
	Metadata     map[string]string
	CommitTag    string
	CreatedAt    time.Time
}

// StateUpdate is a compare-and-swap write of a machine's state.
type StateUpdate struct {
	State     []byte
	Input     []byte
	Parameter string
	// ExpectedCommitTag must equal the stored tag for the write to apply.
	ExpectedCommitTag string
	NewCommitTag      string
	UpdatedAt         time.Time
}

// StateRecord is a machine's committed state in encoded form. Input is nil
// for the state a machine was created in.
type StateRecord struct {
	MachineID string
	State     []byte
	Input     []byte
	Parameter string
	CommitTag string
	UpdatedAt time.Time
}

// MachineStore persists machines and their current state.
type MachineStore interface {
	// CreateMachine stores rec and returns its initial state. It fails with
	// api.ErrMachineExists when the ID is taken.
	CreateMachine(ctx context.Context, rec MachineRecord) (StateRecord, error)
	DeleteMachine(ctx context.Context, id string) error
	GetMachineState(ctx context.Context, id string) (StateRecord, error)
	// SetMachineState applies upd only if the stored commit tag equals
	// upd.ExpectedCommitTag, failing with api.ErrConcurrencyConflict
	// otherwise.
	SetMachineState(ctx context.Context, id string, upd StateUpdate) (StateRecord, error)
	GetMachineMetadata(ctx context.Context, id string) (map[string]string, error)
	GetMachineSchematic(ctx context.Context, id string) ([]byte, error)
}

// SchematicStore persists encoded schematics by name.
type SchematicStore interface {
	// StoreSchematic inserts or replaces the schematic stored under name.
	StoreSchematic(ctx context.Context, name string, data []byte) error
	GetSchematic(ctx context.Context, name string) ([]byte, error)
}

// Store is implemented by backends that hold both machines and schematics.
type Store interface {
	MachineStore
	SchematicStore
}

func stateFromUpdate(id string, upd StateUpdate) StateRecord {
	return StateRecord{
		MachineID: id,
		State:     upd.State,
		Input:     upd.Input,
		Parameter: upd.Parameter,
		CommitTag: upd.NewCommitTag,
		UpdatedAt: upd.UpdatedAt,
	}
}

func stateFromRecord(rec MachineRecord) StateRecord {
	return StateRecord{
		MachineID: rec.ID,
		State:     rec.InitialState,
		CommitTag: rec.CommitTag,
		UpdatedAt: rec.CreatedAt,
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
