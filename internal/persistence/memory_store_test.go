package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return NewInMemoryStore() }})
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	rec := MachineRecord{ID: "m1", Schematic: []byte("s"), InitialState: []byte("a"), CommitTag: "t0"}
	if _, err := store.CreateMachine(ctx, rec); err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}
	rec.InitialState[0] = 'z'

	st, err := store.GetMachineState(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMachineState failed: %v", err)
	}
	if string(st.State) != "a" {
		t.Fatalf("store aliased caller bytes: got %q", st.State)
	}
	st.State[0] = 'y'

	again, _ := store.GetMachineState(ctx, "m1")
	if string(again.State) != "a" {
		t.Fatalf("store leaked internal bytes: got %q", again.State)
	}
}

func TestInMemoryStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewInMemoryStore().GetMachineState(ctx, "m1"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
