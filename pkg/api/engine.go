package api

import "context"

// Machine is a handle on one persisted state machine. Handles are cheap and
// hold no state of their own; every call reads through to the repository.
type Machine[S, I comparable] interface {
	// MachineID returns the identifier of the machine.
	MachineID() string

	// Send applies input to the machine's current state, invokes the target
	// state's entry connector and commits the result.
	Send(ctx context.Context, input I, opts ...SendOption) (*State[S, I], error)

	// CurrentState returns the last committed state.
	CurrentState(ctx context.Context) (*State[S, I], error)

	// Metadata returns the metadata the machine was created with.
	Metadata(ctx context.Context) (map[string]string, error)

	// Schematic returns the schematic the machine was created from.
	Schematic(ctx context.Context) (*Schematic[S, I], error)
}

// StateEngine creates, finds and deletes machines and manages stored
// schematics. Local and remote engines implement the same contract.
type StateEngine[S, I comparable] interface {
	// CreateMachine persists a new machine in the schematic's initial state
	// under a freshly generated identifier.
	CreateMachine(ctx context.Context, schematic *Schematic[S, I], metadata map[string]string) (Machine[S, I], error)

	// CreateMachineWithID is CreateMachine with a caller supplied identifier.
	CreateMachineWithID(ctx context.Context, machineID string, schematic *Schematic[S, I], metadata map[string]string) (Machine[S, I], error)

	// CreateMachineFromStore creates a machine from a previously stored
	// schematic.
	CreateMachineFromStore(ctx context.Context, schematicName string, metadata map[string]string) (Machine[S, I], error)

	// GetMachine returns a handle for machineID without checking that it
	// exists. Operations on a missing machine fail with ErrMachineNotFound.
	GetMachine(ctx context.Context, machineID string) (Machine[S, I], error)

	// DeleteMachine removes a machine and its state.
	DeleteMachine(ctx context.Context, machineID string) error

	// StoreSchematic validates and stores a schematic under its name,
	// replacing any previous version.
	StoreSchematic(ctx context.Context, schematic *Schematic[S, I]) (*Schematic[S, I], error)

	// GetSchematic loads a stored schematic by name.
	GetSchematic(ctx context.Context, name string) (*Schematic[S, I], error)
}
