package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/statum/internal/persistence"
	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

// repository is the typed view of the byte oriented stores for one
// state/input type pair.
type repository[S, I comparable] struct {
	machines   persistence.MachineStore
	schematics persistence.SchematicStore
}

func (r repository[S, I]) decodeState(rec persistence.StateRecord) (*api.State[S, I], error) {
	value, err := wire.Decode[S](rec.State)
	if err != nil {
		return nil, fmt.Errorf("machine %s: decode state: %w", rec.MachineID, err)
	}
	st := &api.State[S, I]{
		MachineID: rec.MachineID,
		Value:     value,
		Parameter: rec.Parameter,
		CommitTag: rec.CommitTag,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Input != nil {
		in, err := wire.Decode[I](rec.Input)
		if err != nil {
			return nil, fmt.Errorf("machine %s: decode input: %w", rec.MachineID, err)
		}
		st.Input, st.HasInput = in, true
	}
	return st, nil
}

func (r repository[S, I]) create(ctx context.Context, id string, s *api.Schematic[S, I], metadata map[string]string, tag string, at time.Time) (*api.State[S, I], error) {
	schematic, err := wire.EncodeSchematic(s)
	if err != nil {
		return nil, err
	}
	initial, err := wire.Encode(s.InitialState())
	if err != nil {
		return nil, err
	}
	rec, err := r.machines.CreateMachine(ctx, persistence.MachineRecord{
		ID:            id,
		SchematicName: s.Name(),
		Schematic:     schematic,
		InitialState:  initial,
		Metadata:      metadata,
		CommitTag:     tag,
		CreatedAt:     at,
	})
	if err != nil {
		return nil, err
	}
	return r.decodeState(rec)
}

func (r repository[S, I]) state(ctx context.Context, id string) (*api.State[S, I], error) {
	rec, err := r.machines.GetMachineState(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.decodeState(rec)
}

func (r repository[S, I]) commit(ctx context.Context, id string, value S, input I, parameter, expected, next string, at time.Time) (*api.State[S, I], error) {
	state, err := wire.Encode(value)
	if err != nil {
		return nil, err
	}
	in, err := wire.Encode(input)
	if err != nil {
		return nil, err
	}
	rec, err := r.machines.SetMachineState(ctx, id, persistence.StateUpdate{
		State:             state,
		Input:             in,
		Parameter:         parameter,
		ExpectedCommitTag: expected,
		NewCommitTag:      next,
		UpdatedAt:         at,
	})
	if err != nil {
		return nil, err
	}
	return r.decodeState(rec)
}

func (r repository[S, I]) machineSchematic(ctx context.Context, id string) (*api.Schematic[S, I], error) {
	data, err := r.machines.GetMachineSchematic(ctx, id)
	if err != nil {
		return nil, err
	}
	return wire.DecodeSchematic[S, I](data)
}

func (r repository[S, I]) storeSchematic(ctx context.Context, s *api.Schematic[S, I]) (*api.Schematic[S, I], error) {
	data, err := wire.EncodeSchematic(s)
	if err != nil {
		return nil, err
	}
	if err := r.schematics.StoreSchematic(ctx, s.Name(), data); err != nil {
		return nil, err
	}
	return wire.DecodeSchematic[S, I](data)
}

func (r repository[S, I]) schematic(ctx context.Context, name string) (*api.Schematic[S, I], error) {
	data, err := r.schematics.GetSchematic(ctx, name)
	if err != nil {
		return nil, err
	}
	return wire.DecodeSchematic[S, I](data)
}
