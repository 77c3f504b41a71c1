package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/statum/internal/config"
	"github.com/petrijr/statum/internal/engine"
	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/remote"
)

func newServeCmd() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve state engines over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, cfg.Logger(os.Stderr), nil)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "read settings from these .env files (default ./.env)")
	return cmd
}

// serve runs until ctx is cancelled. When ready is non-nil it receives the
// bound engine address once the listener is up.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ready chan<- string) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logger.Warn("backend_close_failed", slog.Any("error", err))
		}
	}()

	srv := remote.NewServer(remote.WithServerLogger(logger), remote.WithMaxFrameSize(cfg.MaxFrameSize))
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(api.NewLoggingObserver(logger)),
		engine.WithConnectors(api.NewLogConnector(logger)),
	}
	if err := serveEngine[string, string](srv, b, opts); err != nil {
		return err
	}
	if err := serveEngine[int, int](srv, b, opts); err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.Heartbeat("/healthz"))
	router.Handle("/"+remote.ServiceName+"/*", srv)

	servers := []*http.Server{{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}}
	if cfg.MetricsAddr == "" {
		router.Handle("/metrics", promhttp.Handler())
	} else {
		metrics := chi.NewRouter()
		metrics.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: metrics, ReadHeaderTimeout: 10 * time.Second})
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, hs := range servers {
		ln, err := net.Listen("tcp", hs.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen %s: %w", hs.Addr, err)
		}
		listeners = append(listeners, ln)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, hs := range servers {
		ln := listeners[i]
		g.Go(func() error {
			logger.Info("listening", slog.String("addr", ln.Addr().String()))
			if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, hs := range servers {
			errs = append(errs, hs.Shutdown(shutdownCtx))
		}
		logger.Info("shutdown_complete")
		return errors.Join(errs...)
	})

	if ready != nil {
		ready <- listeners[0].Addr().String()
	}
	return g.Wait()
}

func serveEngine[S, I comparable](srv *remote.Server, b *backend, opts []engine.Option) error {
	eng, err := engine.NewEngine[S, I](b.Persistence, opts...)
	if err != nil {
		return err
	}
	return remote.Register(srv, eng)
}
