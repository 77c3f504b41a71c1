package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petrijr/statum/pkg/api"
)

func TestSendMetrics(t *testing.T) {
	ctx := context.Background()
	eng, _ := newConflictingEngine(t, 1)

	s := withRetry(t, api.RetryPolicy{Enabled: true, MaxRetries: 1})
	m, err := eng.CreateMachine(ctx, s, nil)
	require.NoError(t, err)

	success := inputsTotal.WithLabelValues("turnstile", "success")
	noTransition := inputsTotal.WithLabelValues("turnstile", string(api.KindNoTransition))
	conflicts := conflictsTotal.WithLabelValues("turnstile")

	successBefore := testutil.ToFloat64(success)
	noTransitionBefore := testutil.ToFloat64(noTransition)
	conflictsBefore := testutil.ToFloat64(conflicts)

	_, err = m.Send(ctx, "coin")
	require.NoError(t, err)
	_, err = m.Send(ctx, "repair")
	require.ErrorIs(t, err, api.ErrNoTransitionDefined)

	assert.Equal(t, successBefore+1, testutil.ToFloat64(success))
	assert.Equal(t, noTransitionBefore+1, testutil.ToFloat64(noTransition))
	assert.Equal(t, conflictsBefore+1, testutil.ToFloat64(conflicts))
}

func TestConnectorMetrics(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConnector{key: "metrics-probe", fail: errors.New("down")}
	eng := newTestEngine(t, WithConnectors(conn))

	m, err := eng.CreateMachine(ctx, turnstile(t, &api.EntryConnector[string]{ConnectorKey: "metrics-probe"}), nil)
	require.NoError(t, err)

	failed := connectorInvocationsTotal.WithLabelValues("metrics-probe", "error")
	before := testutil.ToFloat64(failed)

	_, err = m.Send(ctx, "coin")
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestSendSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()
	conn := &recordingConnector{key: "notify"}
	eng := newTestEngine(t, WithConnectors(conn))

	m, err := eng.CreateMachine(ctx, turnstile(t, &api.EntryConnector[string]{ConnectorKey: "notify"}), nil)
	require.NoError(t, err)

	_, err = m.Send(ctx, "coin")
	require.NoError(t, err)
	_, err = m.Send(ctx, "repair")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)

	connector, okSend, failedSend := spans[0], spans[1], spans[2]
	assert.Equal(t, "statum.connector.on_entry", connector.Name())
	assert.Equal(t, okSend.SpanContext().SpanID(), connector.Parent().SpanID())

	assert.Equal(t, "statum.machine.send", okSend.Name())
	assert.Equal(t, codes.Ok, okSend.Status().Code)
	assert.Contains(t, okSend.Attributes(), attribute.String("statum.machine_id", m.MachineID()))

	assert.Equal(t, codes.Error, failedSend.Status().Code)
	assert.Contains(t, failedSend.Attributes(), attribute.String("statum.error_kind", string(api.KindNoTransition)))
}

func TestLoggingObserverThroughEngine(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	obs := api.NewCompositeObserver(api.NewLoggingObserver(slogt.New(t)), metrics)
	eng := newTestEngine(t, WithObserver(obs), WithLogger(slogt.New(t)))

	m, err := eng.CreateMachine(ctx, turnstile(t, nil), nil)
	require.NoError(t, err)
	_, err = m.Send(ctx, "coin")
	require.NoError(t, err)
	require.NoError(t, eng.DeleteMachine(ctx, m.MachineID()))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.MachinesCreated)
	assert.Equal(t, int64(1), snap.Transitions)
	assert.Equal(t, int64(1), snap.MachinesDeleted)
}

func TestTransitionEventDetails(t *testing.T) {
	ctx := context.Background()
	obs := &eventObserver{}
	eng, _ := newConflictingEngine(t, 2, WithObserver(obs))

	m, err := eng.CreateMachine(ctx, withRetry(t, api.RetryPolicy{Enabled: true}), nil)
	require.NoError(t, err)
	st, err := m.Send(ctx, "coin")
	require.NoError(t, err)

	require.Len(t, obs.transitions, 1)
	ev := obs.transitions[0]
	assert.Equal(t, m.MachineID(), ev.MachineID)
	assert.Equal(t, "turnstile", ev.Schematic)
	assert.Equal(t, "Locked", ev.From)
	assert.Equal(t, "Unlocked", ev.To)
	assert.Equal(t, "coin", ev.Input)
	assert.Equal(t, st.CommitTag, ev.CommitTag)
	assert.Equal(t, 2, ev.Conflicts)
	assert.Equal(t, []int{1, 2}, obs.conflicts)
}

type eventObserver struct {
	api.NoopObserver
	transitions []api.TransitionEvent
	conflicts   []int
}

func (o *eventObserver) OnTransition(ctx context.Context, ev api.TransitionEvent) {
	o.transitions = append(o.transitions, ev)
}

func (o *eventObserver) OnConflict(ctx context.Context, machineID string, conflicts int) {
	o.conflicts = append(o.conflicts, conflicts)
}
