package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/statum/internal/persistence"
	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

// engineImpl is a synchronous, in-process StateEngine. All machine state
// lives in the configured stores; the engine itself only holds wiring.
type engineImpl[S, I comparable] struct {
	repo       repository[S, I]
	connectors *ConnectorRegistry
	observer   api.Observer
	logger     *slog.Logger
	newID      func() string
	newTag     func() string
	now        func() time.Time
}

// Config describes how to construct an engine.
// External callers normally use the constructors and Options instead.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer
	Connectors  []api.Connector
	Logger      *slog.Logger

	// IDGenerator produces machine identifiers. Defaults to random UUIDs.
	IDGenerator func() string
	// Clock stamps committed states. Defaults to time.Now.
	Clock func() time.Time
}

// Option adjusts a Config.
type Option func(*Config)

// WithObserver sets the engine's Observer.
func WithObserver(obs api.Observer) Option {
	return func(c *Config) { c.Observer = obs }
}

// WithConnectors registers entry connectors with the engine.
func WithConnectors(conns ...api.Connector) Option {
	return func(c *Config) { c.Connectors = append(c.Connectors, conns...) }
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithIDGenerator overrides how machine identifiers are generated.
func WithIDGenerator(fn func() string) Option {
	return func(c *Config) { c.IDGenerator = fn }
}

// WithClock overrides the time source used to stamp states.
func WithClock(fn func() time.Time) Option {
	return func(c *Config) { c.Clock = fn }
}

// NewEngineWithConfig creates a new StateEngine using the given configuration.
func NewEngineWithConfig[S, I comparable](cfg Config) (api.StateEngine[S, I], error) {
	if err := wire.CheckType[S](); err != nil {
		return nil, fmt.Errorf("state type %s: %w", wire.TypeName[S](), err)
	}
	if err := wire.CheckType[I](); err != nil {
		return nil, fmt.Errorf("input type %s: %w", wire.TypeName[I](), err)
	}
	if cfg.Persistence.Machines == nil || cfg.Persistence.Schematics == nil {
		return nil, errors.New("engine requires machine and schematic stores")
	}

	registry, err := NewConnectorRegistry(cfg.Connectors...)
	if err != nil {
		return nil, err
	}

	e := &engineImpl[S, I]{
		repo: repository[S, I]{
			machines:   cfg.Persistence.Machines,
			schematics: cfg.Persistence.Schematics,
		},
		connectors: registry,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		newID:      cfg.IDGenerator,
		newTag:     uuid.NewString,
		now:        cfg.Clock,
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// NewEngine returns a StateEngine over the given stores.
func NewEngine[S, I comparable](p persistence.Persistence, opts ...Option) (api.StateEngine[S, I], error) {
	cfg := Config{Persistence: p}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngineWithConfig[S, I](cfg)
}

// NewInMemoryEngine returns a StateEngine backed entirely by in-memory stores.
func NewInMemoryEngine[S, I comparable](opts ...Option) (api.StateEngine[S, I], error) {
	return NewEngine[S, I](persistence.FromStore(persistence.NewInMemoryStore()), opts...)
}

// NewSQLiteEngine returns a StateEngine persisting to a SQLite database.
func NewSQLiteEngine[S, I comparable](ctx context.Context, db *sql.DB, opts ...Option) (api.StateEngine[S, I], error) {
	store, err := persistence.NewSQLiteStore(ctx, db)
	if err != nil {
		return nil, err
	}
	return NewEngine[S, I](persistence.FromStore(store), opts...)
}

// NewPostgresEngine returns a StateEngine persisting to PostgreSQL.
func NewPostgresEngine[S, I comparable](ctx context.Context, db *sql.DB, opts ...Option) (api.StateEngine[S, I], error) {
	store, err := persistence.NewPostgresStore(ctx, db)
	if err != nil {
		return nil, err
	}
	return NewEngine[S, I](persistence.FromStore(store), opts...)
}

// NewRedisEngine returns a StateEngine persisting to Redis under prefix.
func NewRedisEngine[S, I comparable](client *redis.Client, prefix string, opts ...Option) (api.StateEngine[S, I], error) {
	return NewEngine[S, I](persistence.FromStore(persistence.NewRedisStore(client, prefix)), opts...)
}

// NewMongoEngine returns a StateEngine persisting to the MongoDB database dbName.
func NewMongoEngine[S, I comparable](client *mongo.Client, dbName string, opts ...Option) (api.StateEngine[S, I], error) {
	return NewEngine[S, I](persistence.FromStore(persistence.NewMongoStore(client, dbName)), opts...)
}

func (e *engineImpl[S, I]) CreateMachine(ctx context.Context, schematic *api.Schematic[S, I], metadata map[string]string) (api.Machine[S, I], error) {
	return e.CreateMachineWithID(ctx, e.newID(), schematic, metadata)
}

func (e *engineImpl[S, I]) CreateMachineWithID(ctx context.Context, machineID string, schematic *api.Schematic[S, I], metadata map[string]string) (api.Machine[S, I], error) {
	if strings.TrimSpace(machineID) == "" {
		return nil, fmt.Errorf("%w: machine id is required", api.ErrValidation)
	}
	if schematic == nil {
		return nil, fmt.Errorf("%w: schematic is required", api.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("create machine", machineID, err)
	}

	if _, err := e.repo.create(ctx, machineID, schematic, metadata, e.newTag(), e.now().UTC()); err != nil {
		return nil, classify("create machine", machineID, err)
	}
	e.observer.OnMachineCreated(ctx, machineID, schematic.Name())
	return e.machine(machineID, schematic), nil
}

func (e *engineImpl[S, I]) CreateMachineFromStore(ctx context.Context, schematicName string, metadata map[string]string) (api.Machine[S, I], error) {
	schematic, err := e.GetSchematic(ctx, schematicName)
	if err != nil {
		return nil, err
	}
	return e.CreateMachine(ctx, schematic, metadata)
}

func (e *engineImpl[S, I]) GetMachine(ctx context.Context, machineID string) (api.Machine[S, I], error) {
	if strings.TrimSpace(machineID) == "" {
		return nil, fmt.Errorf("%w: machine id is required", api.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("get machine", machineID, err)
	}
	return e.machine(machineID, nil), nil
}

func (e *engineImpl[S, I]) DeleteMachine(ctx context.Context, machineID string) error {
	if err := ctx.Err(); err != nil {
		return api.Cancelled("delete machine", machineID, err)
	}
	if err := e.repo.machines.DeleteMachine(ctx, machineID); err != nil {
		return classify("delete machine", machineID, err)
	}
	e.observer.OnMachineDeleted(ctx, machineID)
	return nil
}

func (e *engineImpl[S, I]) StoreSchematic(ctx context.Context, schematic *api.Schematic[S, I]) (*api.Schematic[S, I], error) {
	if schematic == nil {
		return nil, fmt.Errorf("%w: schematic is required", api.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("store schematic", "", err)
	}
	stored, err := e.repo.storeSchematic(ctx, schematic)
	if err != nil {
		return nil, classify("store schematic", "", err)
	}
	e.logger.DebugContext(ctx, "schematic_stored", slog.String("schematic", stored.Name()))
	return stored, nil
}

func (e *engineImpl[S, I]) GetSchematic(ctx context.Context, name string) (*api.Schematic[S, I], error) {
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("get schematic", "", err)
	}
	s, err := e.repo.schematic(ctx, name)
	if err != nil {
		return nil, classify("get schematic "+name, "", err)
	}
	return s, nil
}

func (e *engineImpl[S, I]) machine(id string, schematic *api.Schematic[S, I]) *machine[S, I] {
	return &machine[S, I]{engine: e, id: id, schematic: schematic}
}

// classify attaches operation context to store and codec errors. Errors
// that already describe themselves pass through unchanged.
func classify(op, machineID string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ae *api.Error
		nt *api.NoTransitionError
		ce *api.ConnectorError
		ve *api.ValidationError
	)
	if errors.As(err, &ae) || errors.As(err, &nt) || errors.As(err, &ce) || errors.As(err, &ve) {
		return err
	}
	return &api.Error{Kind: api.KindOf(err), Op: op, MachineID: machineID, Err: err}
}
