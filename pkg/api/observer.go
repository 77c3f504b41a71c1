package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// TransitionEvent describes a committed transition.
type TransitionEvent struct {
	MachineID string
	Schematic string
	From      any
	To        any
	Input     any
	CommitTag string
	// Conflicts is the number of concurrency conflicts absorbed before the
	// commit succeeded.
	Conflicts int
	Duration  time.Duration
}

// Observer receives callbacks from a state engine for logging and metrics.
//
// Implementations should be fast and non-blocking; they run on the caller's
// goroutine inside Send.
type Observer interface {
	// OnMachineCreated is called after a machine is persisted.
	OnMachineCreated(ctx context.Context, machineID, schematic string)

	// OnMachineDeleted is called after a machine is removed.
	OnMachineDeleted(ctx context.Context, machineID string)

	// OnTransition is called after Send commits a new state.
	OnTransition(ctx context.Context, ev TransitionEvent)

	// OnConflict is called every time a commit loses a race. conflicts
	// counts the conflicts seen so far by the current Send.
	OnConflict(ctx context.Context, machineID string, conflicts int)

	// OnConnectorFailed is called when an entry connector returns an error,
	// whether or not a failure transition absorbs it.
	OnConnectorFailed(ctx context.Context, machineID, connectorKey string, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnMachineCreated(ctx context.Context, machineID, schematic string)     {}
func (NoopObserver) OnMachineDeleted(ctx context.Context, machineID string)                {}
func (NoopObserver) OnTransition(ctx context.Context, ev TransitionEvent)                  {}
func (NoopObserver) OnConflict(ctx context.Context, machineID string, conflicts int)        {}
func (NoopObserver) OnConnectorFailed(ctx context.Context, machineID, key string, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopObserver{}
	case 1:
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnMachineCreated(ctx context.Context, machineID, schematic string) {
	for _, o := range c.observers {
		o.OnMachineCreated(ctx, machineID, schematic)
	}
}

func (c *CompositeObserver) OnMachineDeleted(ctx context.Context, machineID string) {
	for _, o := range c.observers {
		o.OnMachineDeleted(ctx, machineID)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, ev TransitionEvent) {
	for _, o := range c.observers {
		o.OnTransition(ctx, ev)
	}
}

func (c *CompositeObserver) OnConflict(ctx context.Context, machineID string, conflicts int) {
	for _, o := range c.observers {
		o.OnConflict(ctx, machineID, conflicts)
	}
}

func (c *CompositeObserver) OnConnectorFailed(ctx context.Context, machineID, key string, err error) {
	for _, o := range c.observers {
		o.OnConnectorFailed(ctx, machineID, key, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs machine lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnMachineCreated(ctx context.Context, machineID, schematic string) {
	o.Logger.InfoContext(ctx, "machine_created",
		slog.String("machine_id", machineID),
		slog.String("schematic", schematic),
	)
}

func (o *LoggingObserver) OnMachineDeleted(ctx context.Context, machineID string) {
	o.Logger.InfoContext(ctx, "machine_deleted",
		slog.String("machine_id", machineID),
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, ev TransitionEvent) {
	o.Logger.DebugContext(ctx, "machine_transition",
		slog.String("machine_id", ev.MachineID),
		slog.String("schematic", ev.Schematic),
		slog.Any("from", ev.From),
		slog.Any("to", ev.To),
		slog.Any("input", ev.Input),
		slog.String("commit_tag", ev.CommitTag),
		slog.Int("conflicts", ev.Conflicts),
		slog.Duration("duration", ev.Duration),
	)
}

func (o *LoggingObserver) OnConflict(ctx context.Context, machineID string, conflicts int) {
	o.Logger.DebugContext(ctx, "machine_conflict",
		slog.String("machine_id", machineID),
		slog.Int("conflicts", conflicts),
	)
}

func (o *LoggingObserver) OnConnectorFailed(ctx context.Context, machineID, key string, err error) {
	o.Logger.WarnContext(ctx, "connector_failed",
		slog.String("machine_id", machineID),
		slog.String("connector", key),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple in-process counters. It implements Observer,
// and can be combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	machinesCreated   atomic.Int64
	machinesDeleted   atomic.Int64
	transitions       atomic.Int64
	conflicts         atomic.Int64
	connectorFailures atomic.Int64
	totalDuration     atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	MachinesCreated   int64
	MachinesDeleted   int64
	Transitions       int64
	Conflicts         int64
	ConnectorFailures int64

	AvgTransitionDuration time.Duration
}

func (m *BasicMetrics) OnMachineCreated(ctx context.Context, machineID, schematic string) {
	m.machinesCreated.Add(1)
}

func (m *BasicMetrics) OnMachineDeleted(ctx context.Context, machineID string) {
	m.machinesDeleted.Add(1)
}

func (m *BasicMetrics) OnTransition(ctx context.Context, ev TransitionEvent) {
	m.transitions.Add(1)
	m.totalDuration.Add(ev.Duration.Nanoseconds())
}

func (m *BasicMetrics) OnConflict(ctx context.Context, machineID string, conflicts int) {
	m.conflicts.Add(1)
}

func (m *BasicMetrics) OnConnectorFailed(ctx context.Context, machineID, key string, err error) {
	m.connectorFailures.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	transitions := m.transitions.Load()
	var avg time.Duration
	if transitions > 0 {
		avg = time.Duration(m.totalDuration.Load() / transitions)
	}
	return BasicMetricsSnapshot{
		MachinesCreated:       m.machinesCreated.Load(),
		MachinesDeleted:       m.machinesDeleted.Load(),
		Transitions:           transitions,
		Conflicts:             m.conflicts.Load(),
		ConnectorFailures:     m.connectorFailures.Load(),
		AvgTransitionDuration: avg,
	}
}
