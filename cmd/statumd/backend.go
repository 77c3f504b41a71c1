package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/statum/internal/config"
	"github.com/petrijr/statum/internal/persistence"
)

// backend is an opened storage backend shared by every served engine.
type backend struct {
	persistence.Persistence
	closers []func(context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Backend {
	case config.BackendMemory:
		b.Persistence = persistence.FromStore(persistence.NewInMemoryStore())

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		b.closeWith(func(context.Context) error { return db.Close() })
		store, err := persistence.NewSQLiteStore(ctx, db)
		if err != nil {
			return nil, b.abort(ctx, err)
		}
		b.Persistence = persistence.FromStore(store)

	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closeWith(func(context.Context) error { return db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return nil, b.abort(ctx, fmt.Errorf("ping postgres: %w", err))
		}
		store, err := persistence.NewPostgresStore(ctx, db)
		if err != nil {
			return nil, b.abort(ctx, err)
		}
		b.Persistence = persistence.FromStore(store)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closeWith(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, b.abort(ctx, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err))
		}
		b.Persistence = persistence.FromStore(persistence.NewRedisStore(client, cfg.RedisPrefix))

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closeWith(client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return nil, b.abort(ctx, fmt.Errorf("ping mongo: %w", err))
		}
		b.Persistence = persistence.FromStore(persistence.NewMongoStore(client, cfg.MongoDatabase))

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}

	logger.Info("backend_opened", slog.String("backend", cfg.Backend))
	return b, nil
}

func (b *backend) closeWith(fn func(context.Context) error) {
	b.closers = append(b.closers, fn)
}

func (b *backend) abort(ctx context.Context, err error) error {
	_ = b.Close(ctx)
	return err
}

// Close releases every connection in reverse order of opening.
func (b *backend) Close(ctx context.Context) error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
