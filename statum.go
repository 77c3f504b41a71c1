package statum

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/statum/internal/engine"
	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/remote"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Schematic[S, I comparable]          = api.Schematic[S, I]
	Definition[S, I comparable]         = api.Definition[S, I]
	StateConfiguration[S, I comparable] = api.StateConfiguration[S, I]
	Transition[S, I comparable]         = api.Transition[S, I]
	EntryConnector[I comparable]        = api.EntryConnector[I]
	FailureTransition[I comparable]     = api.FailureTransition[I]
	State[S, I comparable]              = api.State[S, I]
	Machine[S, I comparable]            = api.Machine[S, I]
	StateEngine[S, I comparable]        = api.StateEngine[S, I]

	RetryPolicy          = api.RetryPolicy
	SendOption           = api.SendOption
	Connector            = api.Connector
	ConnectorFunc        = api.ConnectorFunc
	ConnectorRequest     = api.ConnectorRequest
	Kind                 = api.Kind
	Error                = api.Error
	Observer             = api.Observer
	TransitionEvent      = api.TransitionEvent
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	// EngineOption configures a local engine.
	EngineOption = engine.Option
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewConnector         = api.NewConnector
	NewLogConnector      = api.NewLogConnector
	WithParameter        = api.WithParameter
	KindOf               = api.KindOf

	WithObserver    = engine.WithObserver
	WithConnectors  = engine.WithConnectors
	WithLogger      = engine.WithLogger
	WithIDGenerator = engine.WithIDGenerator
	WithClock       = engine.WithClock
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns a StateEngine backed entirely by in-memory stores.
func NewInMemoryEngine[S, I comparable](opts ...EngineOption) (StateEngine[S, I], error) {
	return engine.NewInMemoryEngine[S, I](opts...)
}

// NewSQLiteEngine returns a StateEngine that persists machines and
// schematics in a SQLite database.
func NewSQLiteEngine[S, I comparable](ctx context.Context, db *sql.DB, opts ...EngineOption) (StateEngine[S, I], error) {
	return engine.NewSQLiteEngine[S, I](ctx, db, opts...)
}

// NewPostgresEngine returns a StateEngine that persists to PostgreSQL.
func NewPostgresEngine[S, I comparable](ctx context.Context, db *sql.DB, opts ...EngineOption) (StateEngine[S, I], error) {
	return engine.NewPostgresEngine[S, I](ctx, db, opts...)
}

// NewRedisEngine returns a StateEngine that persists to Redis. Keys are
// prefixed with prefix, or "statum:" when it is empty.
func NewRedisEngine[S, I comparable](client *redis.Client, prefix string, opts ...EngineOption) (StateEngine[S, I], error) {
	return engine.NewRedisEngine[S, I](client, prefix, opts...)
}

// NewMongoEngine returns a StateEngine that persists to MongoDB.
func NewMongoEngine[S, I comparable](client *mongo.Client, dbName string, opts ...EngineOption) (StateEngine[S, I], error) {
	return engine.NewMongoEngine[S, I](client, dbName, opts...)
}

// NewRemoteEngine returns a StateEngine that forwards every call to a
// statum server at baseURL.
func NewRemoteEngine[S, I comparable](baseURL string, opts ...remote.ClientOption) (StateEngine[S, I], error) {
	return remote.NewStateEngine[S, I](baseURL, opts...)
}

// Convenience helpers that just forward to the underlying StateEngine.

// Send delivers input to the machine with the given id.
func Send[S, I comparable](ctx context.Context, eng StateEngine[S, I], machineID string, input I, opts ...SendOption) (*State[S, I], error) {
	m, err := eng.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return m.Send(ctx, input, opts...)
}

// CurrentState returns the committed state of the machine with the given id.
func CurrentState[S, I comparable](ctx context.Context, eng StateEngine[S, I], machineID string) (*State[S, I], error) {
	m, err := eng.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return m.CurrentState(ctx)
}
