package api

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// ConnectorRequest is everything an entry connector learns about the
// transition that triggered it.
type ConnectorRequest struct {
	ConnectorKey string
	Settings     map[string]string
	Parameter    string
	MachineID    string
	State        any
	Input        any
}

// Connector performs the side effect attached to entering a state. A
// returned error aborts the transition unless the state declares a failure
// transition.
type Connector interface {
	Key() string
	OnEntry(ctx context.Context, req ConnectorRequest) error
}

// ConnectorFunc adapts a function to the OnEntry half of Connector.
type ConnectorFunc func(ctx context.Context, req ConnectorRequest) error

type funcConnector struct {
	key string
	fn  ConnectorFunc
}

func (c funcConnector) Key() string { return c.key }

func (c funcConnector) OnEntry(ctx context.Context, req ConnectorRequest) error {
	return c.fn(ctx, req)
}

// NewConnector returns a Connector registered under key that calls fn.
func NewConnector(key string, fn ConnectorFunc) Connector {
	return funcConnector{key: key, fn: fn}
}

// LogConnectorKey is the key of the connector returned by NewLogConnector.
const LogConnectorKey = "log"

// LogConnector records every state entry through slog. The "level" setting
// selects the log level; remaining settings are logged as attributes.
type LogConnector struct {
	Logger *slog.Logger
}

// NewLogConnector returns a LogConnector writing to logger, or to
// slog.Default() when logger is nil.
func NewLogConnector(logger *slog.Logger) *LogConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConnector{Logger: logger}
}

func (c *LogConnector) Key() string { return LogConnectorKey }

func (c *LogConnector) OnEntry(ctx context.Context, req ConnectorRequest) error {
	level := slog.LevelInfo
	if lv, ok := req.Settings["level"]; ok {
		if err := level.UnmarshalText([]byte(lv)); err != nil {
			return err
		}
	}
	attrs := []slog.Attr{
		slog.String("machine_id", req.MachineID),
		slog.Any("state", req.State),
		slog.Any("input", req.Input),
	}
	if req.Parameter != "" {
		attrs = append(attrs, slog.String("parameter", req.Parameter))
	}
	for _, k := range slices.Sorted(maps.Keys(req.Settings)) {
		if k == "level" {
			continue
		}
		attrs = append(attrs, slog.String(k, req.Settings[k]))
	}
	c.Logger.LogAttrs(ctx, level, "state_entered", attrs...)
	return nil
}

var _ Connector = (*LogConnector)(nil)
