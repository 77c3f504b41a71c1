package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/petrijr/statum/pkg/api"
)

// machine is a handle on one persisted machine. It caches only the
// schematic, which never changes for the life of a machine.
type machine[S, I comparable] struct {
	engine *engineImpl[S, I]
	id     string

	mu        sync.Mutex
	schematic *api.Schematic[S, I]
}

func (m *machine[S, I]) MachineID() string { return m.id }

func (m *machine[S, I]) Schematic(ctx context.Context) (*api.Schematic[S, I], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schematic != nil {
		return m.schematic, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("get schematic", m.id, err)
	}
	s, err := m.engine.repo.machineSchematic(ctx, m.id)
	if err != nil {
		return nil, classify("get schematic", m.id, err)
	}
	m.schematic = s
	return s, nil
}

func (m *machine[S, I]) CurrentState(ctx context.Context) (*api.State[S, I], error) {
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("current state", m.id, err)
	}
	st, err := m.engine.repo.state(ctx, m.id)
	if err != nil {
		return nil, classify("current state", m.id, err)
	}
	return st, nil
}

func (m *machine[S, I]) Metadata(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("metadata", m.id, err)
	}
	md, err := m.engine.repo.machines.GetMachineMetadata(ctx, m.id)
	if err != nil {
		return nil, classify("metadata", m.id, err)
	}
	return md, nil
}

// Send resolves input against the current state, runs the target state's
// entry connector and commits the result. A commit that loses a race is
// retried from a fresh read as long as the schematic's retry policy allows.
func (m *machine[S, I]) Send(ctx context.Context, input I, opts ...api.SendOption) (*api.State[S, I], error) {
	o := api.ApplySendOptions(opts)
	start := time.Now()

	ctx, span := startSendSpan(ctx, m.id, input)
	st, schematicName, err := m.send(ctx, input, o.Parameter)
	err = classify("send", m.id, err)
	finishSpan(span, err)

	label := sanitizeSchematic(schematicName)
	inputsTotal.WithLabelValues(label, outcome(err)).Inc()
	sendDuration.WithLabelValues(label, outcome(err)).Observe(time.Since(start).Seconds())
	return st, err
}

func (m *machine[S, I]) send(ctx context.Context, input I, parameter string) (*api.State[S, I], string, error) {
	schematic, err := m.Schematic(ctx)
	if err != nil {
		return nil, "", err
	}
	name := schematic.Name()
	policy := schematic.RetryPolicy()
	start := time.Now()

	for conflicts := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, name, api.Cancelled("send", m.id, err)
		}

		current, err := m.engine.repo.state(ctx, m.id)
		if err != nil {
			return nil, name, cancelledOr("send", m.id, ctx, err)
		}

		target, applied, err := m.enter(ctx, schematic, current, input, parameter)
		if err != nil {
			return nil, name, err
		}

		if err := ctx.Err(); err != nil {
			return nil, name, api.Cancelled("send", m.id, err)
		}
		next, err := m.engine.repo.commit(ctx, m.id, target, applied, parameter, current.CommitTag, m.engine.newTag(), m.engine.now().UTC())
		if err == nil {
			m.engine.observer.OnTransition(ctx, api.TransitionEvent{
				MachineID: m.id,
				Schematic: name,
				From:      current.Value,
				To:        target,
				Input:     applied,
				CommitTag: next.CommitTag,
				Conflicts: conflicts,
				Duration:  time.Since(start),
			})
			return next, name, nil
		}
		if !errors.Is(err, api.ErrConcurrencyConflict) {
			return nil, name, cancelledOr("send", m.id, ctx, err)
		}

		conflicts++
		conflictsTotal.WithLabelValues(name).Inc()
		m.engine.observer.OnConflict(ctx, m.id, conflicts)
		if !policy.Allows(conflicts) {
			return nil, name, fmt.Errorf("machine %s: state changed during send after %d attempt(s): %w", m.id, conflicts, err)
		}
		if d := policy.Delay(conflicts); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, name, api.Cancelled("send", m.id, ctx.Err())
			case <-t.C:
			}
		}
	}
}

// enter resolves the transition for input and runs the target state's entry
// connector. When the connector fails and its state declares a failure
// transition, the failure input is resolved from the same current state
// instead. It returns the state to commit and the input that led there.
func (m *machine[S, I]) enter(ctx context.Context, schematic *api.Schematic[S, I], current *api.State[S, I], input I, parameter string) (S, I, error) {
	var zeroS S
	var zeroI I

	in := input
	// A failure input can lead to another failing connector; the chain is
	// bounded by the number of states.
	for hops := 0; ; hops++ {
		target, entry, ok := schematic.ResolveTransition(current.Value, in)
		if !ok {
			return zeroS, zeroI, &api.NoTransitionError{MachineID: m.id, State: current.Value, Input: in}
		}
		if entry == nil {
			return target, in, nil
		}

		err := m.invoke(ctx, entry, target, in, parameter)
		if err == nil {
			return target, in, nil
		}
		if errors.Is(err, api.ErrConnectorNotRegistered) {
			return zeroS, zeroI, err
		}
		if ctx.Err() != nil {
			return zeroS, zeroI, api.Cancelled("send", m.id, ctx.Err())
		}

		m.engine.observer.OnConnectorFailed(ctx, m.id, entry.ConnectorKey, err)
		if entry.FailureTransition == nil {
			return zeroS, zeroI, &api.ConnectorError{ConnectorKey: entry.ConnectorKey, MachineID: m.id, Err: err}
		}
		failure := entry.FailureTransition.Input
		if _, _, ok := schematic.ResolveTransition(current.Value, failure); !ok || hops >= len(schematic.States()) {
			return zeroS, zeroI, &api.ConnectorError{
				ConnectorKey: entry.ConnectorKey,
				MachineID:    m.id,
				Err:          fmt.Errorf("%w; failure input %v cannot be applied from state %v", err, failure, current.Value),
			}
		}

		m.engine.logger.DebugContext(ctx, "connector_failure_transition",
			slog.String("machine_id", m.id),
			slog.String("connector", entry.ConnectorKey),
			slog.Any("failure_input", failure),
		)
		in = failure
	}
}

func (m *machine[S, I]) invoke(ctx context.Context, entry *api.EntryConnector[I], target S, input I, parameter string) error {
	conn, err := m.engine.connectors.Get(entry.ConnectorKey)
	if err != nil {
		return err
	}

	ctx, span := startConnectorSpan(ctx, entry.ConnectorKey)
	err = conn.OnEntry(ctx, api.ConnectorRequest{
		ConnectorKey: entry.ConnectorKey,
		Settings:     maps.Clone(entry.Settings),
		Parameter:    parameter,
		MachineID:    m.id,
		State:        target,
		Input:        input,
	})
	finishSpan(span, err)

	result := "success"
	if err != nil {
		result = "error"
	}
	connectorInvocationsTotal.WithLabelValues(entry.ConnectorKey, result).Inc()
	return err
}

// cancelledOr reports err as a cancellation when ctx is done, since stores
// surface cancellation through their own error types.
func cancelledOr(op, machineID string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return api.Cancelled(op, machineID, err)
	}
	return err
}
