package statum

import (
	"context"
	"errors"
	"testing"

	"github.com/petrijr/statum/pkg/api"
)

func TestSendAndCurrentStateHelpers(t *testing.T) {
	ctx := context.Background()

	metrics := &BasicMetrics{}
	eng, err := NewInMemoryEngine[string, string](
		WithObserver(NewCompositeObserver(metrics, NoopObserver{})),
		WithConnectors(NewConnector("lamp", func(context.Context, ConnectorRequest) error { return nil })),
		WithIDGenerator(func() string { return "fixed-id" }),
	)
	if err != nil {
		t.Fatalf("NewInMemoryEngine: %v", err)
	}

	m, err := eng.CreateMachine(ctx, lightSchematic(t), nil)
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	if m.MachineID() != "fixed-id" {
		t.Fatalf("expected generated id fixed-id, got %q", m.MachineID())
	}

	st, err := Send(ctx, eng, "fixed-id", "flip", WithParameter("manual"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if st.Value != "on" || st.Parameter != "manual" || !st.HasInput {
		t.Fatalf("unexpected state %+v", st)
	}

	cur, err := CurrentState(ctx, eng, "fixed-id")
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if cur.CommitTag != st.CommitTag {
		t.Fatalf("expected committed tag %q, got %q", st.CommitTag, cur.CommitTag)
	}

	if _, err := CurrentState(ctx, eng, "ghost"); !errors.Is(err, api.ErrMachineNotFound) {
		t.Fatalf("expected machine not found, got %v", err)
	}
	if _, err := Send(ctx, eng, "", "flip"); KindOf(err) != api.KindValidation {
		t.Fatalf("expected validation error for blank id, got %v", err)
	}

	snap := metrics.Snapshot()
	if snap.MachinesCreated != 1 || snap.Transitions != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}
