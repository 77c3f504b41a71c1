package statum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/petrijr/statum/pkg/remote"
)

// LocalServer bundles an in-memory StateEngine and a remote.Server listening
// on a local port. It is meant for development and for exercising remote
// clients in tests.
//
// Typical usage:
//
//	srv, _ := statum.NewLocalServer[string, string](statum.WithConnectors(conn))
//	_ = srv.Start("127.0.0.1:0")
//	defer srv.Stop(context.Background())
//
//	eng, _ := srv.Client()
//	m, _ := eng.CreateMachine(ctx, schematic, nil)
//
// Machines live only as long as the process.
type LocalServer[S, I comparable] struct {
	// Engine is the in-memory engine served to remote clients. It can also
	// be used directly; both views share the same machines.
	Engine StateEngine[S, I]

	// Server is the remote handler Engine is registered on.
	Server *remote.Server

	logger *slog.Logger

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	running  bool
}

// NewLocalServer constructs a LocalServer around a new in-memory engine.
func NewLocalServer[S, I comparable](opts ...EngineOption) (*LocalServer[S, I], error) {
	eng, err := NewInMemoryEngine[S, I](opts...)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	srv := remote.NewServer(remote.WithServerLogger(logger))
	if err := remote.Register(srv, eng); err != nil {
		return nil, err
	}
	return &LocalServer[S, I]{Engine: eng, Server: srv, logger: logger}, nil
}

// Start listens on addr and serves in the background. An empty addr picks
// a free loopback port.
//
// If Start is called more than once without Stop, it returns an error.
func (r *LocalServer[S, I]) Start(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("statum: LocalServer already started")
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("statum: listen %s: %w", addr, err)
	}
	hs := &http.Server{
		Handler:           r.Server,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.httpSrv = hs
	r.listener = ln
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("local_server_failed", slog.String("addr", ln.Addr().String()), slog.Any("error", err))
		}
	}()

	r.logger.Debug("local_server_started", slog.String("addr", ln.Addr().String()))
	return nil
}

// URL returns the base URL clients should use, or "" when the server is not
// running.
func (r *LocalServer[S, I]) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ""
	}
	return "http://" + r.listener.Addr().String()
}

// Client returns a remote StateEngine connected to this server.
func (r *LocalServer[S, I]) Client(opts ...remote.ClientOption) (StateEngine[S, I], error) {
	url := r.URL()
	if url == "" {
		return nil, errors.New("statum: LocalServer is not running")
	}
	return remote.NewStateEngine[S, I](url, opts...)
}

// Stop shuts the server down gracefully and waits for the serving goroutine
// to exit. Calling Stop on a stopped server is a no-op.
func (r *LocalServer[S, I]) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	hs := r.httpSrv
	r.running = false
	r.httpSrv = nil
	r.listener = nil
	r.mu.Unlock()

	err := hs.Shutdown(ctx)
	r.wg.Wait()
	return err
}
