package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/statum/pkg/api"
)

func TestConnectorReceivesTransitionDetails(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "notify"}
	eng := newTestEngine(t, WithConnectors(conn))

	s := turnstile(t, &api.EntryConnector[string]{
		ConnectorKey: "notify",
		Settings:     map[string]string{"channel": "ops"},
	})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin", api.WithParameter("p-1"))
	require.NoError(t, err)

	// Reentry into Unlocked runs the connector again.
	_, err = m.Send(ctx, "coin")
	require.NoError(t, err)

	calls := conn.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, api.ConnectorRequest{
		ConnectorKey: "notify",
		Settings:     map[string]string{"channel": "ops"},
		Parameter:    "p-1",
		MachineID:    m.MachineID(),
		State:        "Unlocked",
		Input:        "coin",
	}, calls[0])
	assert.Equal(t, "", calls[1].Parameter)
}

func TestConnectorSettingsAreCopied(t *testing.T) {
	ctx := context.Background()
	conn := api.NewConnector("mutate", func(ctx context.Context, req api.ConnectorRequest) error {
		req.Settings["channel"] = "changed"
		return nil
	})
	eng := newTestEngine(t, WithConnectors(conn))

	s := turnstile(t, &api.EntryConnector[string]{ConnectorKey: "mutate", Settings: map[string]string{"channel": "ops"}})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)
	_, err = m.Send(ctx, "coin")
	require.NoError(t, err)

	cfg, ok := s.State("Unlocked")
	require.True(t, ok)
	assert.Equal(t, "ops", cfg.OnEntry.Settings["channel"])
}

func TestConnectorFailureWithoutCompensationAbortsSend(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("smtp down")
	conn := &recordingConnector{key: "notify", fail: boom}
	metrics := &api.BasicMetrics{}
	eng := newTestEngine(t, WithConnectors(conn), WithObserver(metrics))

	m, err := eng.CreateMachine(ctx, turnstile(t, &api.EntryConnector[string]{ConnectorKey: "notify"}), nil)
	require.NoError(t, err)
	before, err := m.CurrentState(ctx)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrConnectorFailure)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, api.KindConnectorFailure, api.KindOf(err))

	var ce *api.ConnectorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "notify", ce.ConnectorKey)

	after, err := m.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed connector must not commit anything")
	assert.Equal(t, int64(1), metrics.Snapshot().ConnectorFailures)
}

func TestConnectorFailureKeepsItsKind(t *testing.T) {
	ctx := context.Background()
	causes := []error{
		fmt.Errorf("upstream call: %w", context.DeadlineExceeded),
		fmt.Errorf("upstream call: %w", context.Canceled),
		&api.Error{Kind: api.KindTransport, Err: api.ErrTransport},
		&api.NoTransitionError{MachineID: "other", State: "a", Input: "b"},
		api.ErrConcurrencyConflict,
	}
	for _, cause := range causes {
		conn := &recordingConnector{key: "slow", fail: cause}
		eng := newTestEngine(t, WithConnectors(conn))

		m, err := eng.CreateMachine(ctx, turnstile(t, &api.EntryConnector[string]{ConnectorKey: "slow"}), nil)
		require.NoError(t, err)

		_, err = m.Send(ctx, "coin")
		require.Error(t, err)
		assert.Equal(t, api.KindConnectorFailure, api.KindOf(err), "cause %v", cause)
		assert.ErrorIs(t, err, api.ErrConnectorFailure)
		assert.ErrorIs(t, err, cause)
	}
}

func TestConnectorFailureSendsFailureInput(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "notify", fail: errors.New("smtp down")}
	metrics := &api.BasicMetrics{}
	eng := newTestEngine(t, WithConnectors(conn), WithObserver(metrics))

	s, err := api.NewSchematic(api.Definition[string, string]{
		Name: "order",
		States: []api.StateConfiguration[string, string]{
			{
				Value:   "Pending",
				Initial: true,
				Transitions: []api.Transition[string, string]{
					{Input: "pay", ResultantState: "Paid"},
					{Input: "fail", ResultantState: "Failed"},
				},
			},
			{
				Value: "Paid",
				OnEntry: &api.EntryConnector[string]{
					ConnectorKey:      "notify",
					FailureTransition: &api.FailureTransition[string]{Input: "fail"},
				},
			},
			{Value: "Failed"},
		},
	})
	require.NoError(t, err)

	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	st, err := m.Send(ctx, "pay")
	require.NoError(t, err)
	assert.Equal(t, "Failed", st.Value)
	assert.Equal(t, "fail", st.Input)

	stored, err := m.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Failed", stored.Value, "the machine never lands in the intermediate state")
	assert.Equal(t, int64(1), metrics.Snapshot().ConnectorFailures)
	assert.Equal(t, int64(1), metrics.Snapshot().Transitions)
}

func TestZeroValueFailureInputIsHonoured(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "reserve", fail: errors.New("no stock")}
	eng, err := NewInMemoryEngine[int, int](WithConnectors(conn))
	require.NoError(t, err)

	s, err := api.NewSchematic(api.Definition[int, int]{
		Name: "inventory",
		States: []api.StateConfiguration[int, int]{
			{Value: 10, Initial: true, Transitions: []api.Transition[int, int]{
				{Input: 1, ResultantState: 20},
				{Input: 0, ResultantState: 30},
			}},
			{Value: 20, OnEntry: &api.EntryConnector[int]{
				ConnectorKey:      "reserve",
				FailureTransition: &api.FailureTransition[int]{Input: 0},
			}},
			{Value: 30},
		},
	})
	require.NoError(t, err)

	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	st, err := m.Send(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 30, st.Value)
	assert.Equal(t, 0, st.Input)
}

func TestFailureInputWithoutTransitionReportsConnectorFailure(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "notify", fail: errors.New("smtp down")}
	eng := newTestEngine(t, WithConnectors(conn))

	s := turnstile(t, &api.EntryConnector[string]{
		ConnectorKey:      "notify",
		FailureTransition: &api.FailureTransition[string]{Input: "repair"},
	})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin")
	assert.Equal(t, api.KindConnectorFailure, api.KindOf(err))

	st, err := m.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Locked", st.Value)
}

func TestFailureInputChainIsBounded(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "always-fails", fail: errors.New("nope")}
	eng := newTestEngine(t, WithConnectors(conn))

	// Unlocked fails with "coin", which resolves back into Unlocked.
	s, err := api.NewSchematic(api.Definition[string, string]{
		Name: "loop",
		States: []api.StateConfiguration[string, string]{
			{Value: "Locked", Initial: true, Transitions: []api.Transition[string, string]{
				{Input: "coin", ResultantState: "Unlocked"},
			}},
			{Value: "Unlocked", OnEntry: &api.EntryConnector[string]{
				ConnectorKey:      "always-fails",
				FailureTransition: &api.FailureTransition[string]{Input: "coin"},
			}},
		},
	})
	require.NoError(t, err)

	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin")
	assert.Equal(t, api.KindConnectorFailure, api.KindOf(err))
	assert.LessOrEqual(t, len(conn.calls()), len(s.States())+1)
}

func TestUnregisteredConnectorIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	s := turnstile(t, &api.EntryConnector[string]{
		ConnectorKey:      "missing",
		FailureTransition: &api.FailureTransition[string]{Input: "push"},
	})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin")
	require.ErrorIs(t, err, api.ErrConnectorNotRegistered)
	assert.Equal(t, api.KindConfiguration, api.KindOf(err))

	st, err := m.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Locked", st.Value, "configuration errors do not trigger the failure input")
}

func TestLogConnectorWritesEntries(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, WithConnectors(api.NewLogConnector(nil)))

	s := turnstile(t, &api.EntryConnector[string]{
		ConnectorKey: api.LogConnectorKey,
		Settings:     map[string]string{"level": "debug"},
	})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	st, err := m.Send(ctx, "coin")
	require.NoError(t, err)
	assert.Equal(t, "Unlocked", st.Value)
}
