package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/petrijr/statum/internal/persistence"
	"github.com/petrijr/statum/pkg/api"
)

// turnstile builds the classic coin/push turnstile, with an optional entry
// connector on Unlocked.
func turnstile(t *testing.T, onEntry *api.EntryConnector[string]) *api.Schematic[string, string] {
	t.Helper()

	s, err := api.NewSchematic(api.Definition[string, string]{
		Name: "turnstile",
		States: []api.StateConfiguration[string, string]{
			{
				Value:           "Locked",
				Initial:         true,
				ReentrantInputs: []string{"push"},
				Transitions:     []api.Transition[string, string]{{Input: "coin", ResultantState: "Unlocked"}},
			},
			{
				Value:           "Unlocked",
				ReentrantInputs: []string{"coin"},
				Transitions: []api.Transition[string, string]{
					{Input: "push", ResultantState: "Locked"},
					{Input: "jam", ResultantState: "Broken"},
				},
				OnEntry: onEntry,
			},
			{
				Value:       "Broken",
				Transitions: []api.Transition[string, string]{{Input: "repair", ResultantState: "Locked"}},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewSchematic failed: %v", err)
	}
	return s
}

// semaphore builds a counting semaphore over 0..slots with +1/-1 inputs.
func semaphore(t *testing.T, slots int, retry api.RetryPolicy) *api.Schematic[int, int] {
	t.Helper()

	def := api.Definition[int, int]{Name: "semaphore", RetryPolicy: retry}
	for i := 0; i <= slots; i++ {
		cfg := api.StateConfiguration[int, int]{Value: i, Initial: i == 0}
		if i == 0 {
			cfg.ReentrantInputs = []int{-1}
		} else {
			cfg.Transitions = append(cfg.Transitions, api.Transition[int, int]{Input: -1, ResultantState: i - 1})
		}
		if i < slots {
			cfg.Transitions = append(cfg.Transitions, api.Transition[int, int]{Input: 1, ResultantState: i + 1})
		}
		def.States = append(def.States, cfg)
	}

	s, err := api.NewSchematic(def)
	if err != nil {
		t.Fatalf("NewSchematic failed: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T, opts ...Option) api.StateEngine[string, string] {
	t.Helper()

	eng, err := NewInMemoryEngine[string, string](opts...)
	if err != nil {
		t.Fatalf("NewInMemoryEngine failed: %v", err)
	}
	return eng
}

// conflictingStore rejects the next n commits as if another writer had
// committed first.
type conflictingStore struct {
	persistence.MachineStore
	remaining atomic.Int32
	attempts  atomic.Int32
}

func (s *conflictingStore) SetMachineState(ctx context.Context, id string, upd persistence.StateUpdate) (persistence.StateRecord, error) {
	s.attempts.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return persistence.StateRecord{}, api.ErrConcurrencyConflict
	}
	return s.MachineStore.SetMachineState(ctx, id, upd)
}

func newConflictingEngine(t *testing.T, conflicts int32, opts ...Option) (api.StateEngine[string, string], *conflictingStore) {
	t.Helper()

	mem := persistence.NewInMemoryStore()
	cs := &conflictingStore{MachineStore: mem}
	cs.remaining.Store(conflicts)

	eng, err := NewEngine[string, string](persistence.Persistence{Machines: cs, Schematics: mem}, opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng, cs
}

// recordingConnector remembers every request it receives and fails while
// fail is set.
type recordingConnector struct {
	key string

	mu       sync.Mutex
	requests []api.ConnectorRequest
	fail     error
}

func (c *recordingConnector) Key() string { return c.key }

func (c *recordingConnector) OnEntry(ctx context.Context, req api.ConnectorRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return c.fail
}

func (c *recordingConnector) calls() []api.ConnectorRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.ConnectorRequest(nil), c.requests...)
}
