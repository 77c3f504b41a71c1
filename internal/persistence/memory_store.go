package persistence

import (
	"bytes"
	"context"
	"maps"
	"sync"

	"github.com/petrijr/statum/pkg/api"
)

type memoryMachine struct {
	schematicName string
	schematic     []byte
	metadata      map[string]string
	state         StateRecord
}

// InMemoryStore is a simple, goroutine-safe Store backed by maps. Stored
// bytes are copied on the way in and out.
type InMemoryStore struct {
	mu         sync.RWMutex
	schematics map[string][]byte
	machines   map[string]*memoryMachine
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		schematics: make(map[string][]byte),
		machines:   make(map[string]*memoryMachine),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) StoreSchematic(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schematics[name] = bytes.Clone(data)
	return nil
}

func (s *InMemoryStore) GetSchematic(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.schematics[name]
	if !ok {
		return nil, api.ErrSchematicNotFound
	}
	return bytes.Clone(data), nil
}

func (s *InMemoryStore) CreateMachine(ctx context.Context, rec MachineRecord) (StateRecord, error) {
	if err := ctx.Err(); err != nil {
		return StateRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.machines[rec.ID]; exists {
		return StateRecord{}, api.ErrMachineExists
	}
	st := stateFromRecord(rec)
	st.State = bytes.Clone(st.State)
	s.machines[rec.ID] = &memoryMachine{
		schematicName: rec.SchematicName,
		schematic:     bytes.Clone(rec.Schematic),
		metadata:      maps.Clone(rec.Metadata),
		state:         st,
	}
	return cloneState(st), nil
}

func (s *InMemoryStore) DeleteMachine(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[id]; !ok {
		return api.ErrMachineNotFound
	}
	delete(s.machines, id)
	return nil
}

func (s *InMemoryStore) GetMachineState(ctx context.Context, id string) (StateRecord, error) {
	if err := ctx.Err(); err != nil {
		return StateRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return StateRecord{}, api.ErrMachineNotFound
	}
	return cloneState(m.state), nil
}

func (s *InMemoryStore) SetMachineState(ctx context.Context, id string, upd StateUpdate) (StateRecord, error) {
	if err := ctx.Err(); err != nil {
		return StateRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[id]
	if !ok {
		return StateRecord{}, api.ErrMachineNotFound
	}
	if m.state.CommitTag != upd.ExpectedCommitTag {
		return StateRecord{}, api.ErrConcurrencyConflict
	}
	m.state = cloneState(stateFromUpdate(id, upd))
	return cloneState(m.state), nil
}

func (s *InMemoryStore) GetMachineMetadata(ctx context.Context, id string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return nil, api.ErrMachineNotFound
	}
	out := maps.Clone(m.metadata)
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (s *InMemoryStore) GetMachineSchematic(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return nil, api.ErrMachineNotFound
	}
	return bytes.Clone(m.schematic), nil
}

func cloneState(st StateRecord) StateRecord {
	st.State = bytes.Clone(st.State)
	st.Input = nilIfEmpty(bytes.Clone(st.Input))
	return st
}
