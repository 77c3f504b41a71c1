package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

// Server exposes registered StateEngines over HTTP. Each engine serves one
// state/input type pair, selected per call by the type headers.
type Server struct {
	router   chi.Router
	logger   *slog.Logger
	maxFrame int

	mu       sync.RWMutex
	bindings map[typePair]binding
}

type typePair struct {
	state, input string
}

// binding dispatches a decoded call to a typed engine.
type binding interface {
	call(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for request logs.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithMaxFrameSize bounds the size of accepted request payloads.
func WithMaxFrameSize(n int) ServerOption {
	return func(s *Server) { s.maxFrame = n }
}

// NewServer returns a Server with no engines registered.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger:   slog.Default(),
		maxFrame: wire.DefaultMaxFrameSize,
		bindings: make(map[typePair]binding),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Post("/"+ServiceName+"/{method}", s.handle)
	s.router = r
	return s
}

// Register exposes eng under its state and input type names. Registering a
// second engine for the same pair is an error.
func Register[S, I comparable](srv *Server, eng api.StateEngine[S, I]) error {
	if eng == nil {
		return errors.New("remote: engine is nil")
	}
	key := typePair{state: wire.TypeName[S](), input: wire.TypeName[I]()}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if _, exists := srv.bindings[key]; exists {
		return fmt.Errorf("remote: engine for %s/%s already registered", key.state, key.input)
	}
	srv.bindings[key] = &engineBinding[S, I]{eng: eng}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	if ms := r.Header.Get(HeaderTimeout); ms != "" {
		n, err := strconv.ParseInt(ms, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, &api.Error{Kind: api.KindValidation, Op: method, Err: fmt.Errorf("%w: bad %s header %q", api.ErrValidation, HeaderTimeout, ms)})
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(n)*time.Millisecond)
		defer cancel()
	}

	key := typePair{state: r.Header.Get(HeaderStateType), input: r.Header.Get(HeaderInputType)}
	if key.state == "" || key.input == "" {
		s.writeError(w, &api.Error{Kind: api.KindValidation, Op: method, Err: fmt.Errorf("%w: %s and %s headers are required", api.ErrValidation, HeaderStateType, HeaderInputType)})
		return
	}

	s.mu.RLock()
	b, ok := s.bindings[key]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, &api.Error{Kind: api.KindNotFound, Op: method, Err: fmt.Errorf("no engine registered for %s/%s", key.state, key.input)})
		return
	}

	flag, payload, err := wire.ReadFrame(r.Body, s.maxFrame)
	if err == nil && flag != wire.FlagMessage {
		err = fmt.Errorf("%w: unexpected frame flag %#x", wire.ErrMalformed, flag)
	}
	if err != nil {
		s.writeError(w, &api.Error{Kind: api.KindValidation, Op: method, Err: fmt.Errorf("%w: %w", api.ErrValidation, err)})
		return
	}

	out, err := b.call(ctx, method, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	if err := wire.WriteFrame(w, wire.FlagMessage, out); err != nil {
		s.logger.WarnContext(r.Context(), "remote_write_failed", slog.String("method", method), slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := toErrorResponse(err)
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set(HeaderErrorKind, resp.Kind)
	w.WriteHeader(statusFor(api.Kind(resp.Kind)))
	_ = wire.WriteFrame(w, wire.FlagError, resp.marshal())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "remote_call",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("error_kind", ww.Header().Get(HeaderErrorKind)),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// engineBinding adapts a typed StateEngine to the untyped call surface.
type engineBinding[S, I comparable] struct {
	eng api.StateEngine[S, I]
}

func badRequest(method string, err error) error {
	return &api.Error{Kind: api.KindValidation, Op: method, Err: fmt.Errorf("%w: %w", api.ErrValidation, err)}
}

func (b *engineBinding[S, I]) call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	switch method {
	case MethodCreateMachine:
		var req createMachineRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		return b.createMachine(ctx, req)

	case MethodGetMachine:
		var req machineRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		m, err := b.eng.GetMachine(ctx, req.MachineID)
		if err != nil {
			return nil, err
		}
		s, err := m.Schematic(ctx)
		if err != nil {
			return nil, err
		}
		data, err := wire.EncodeSchematic(s)
		if err != nil {
			return nil, err
		}
		return machineResponse{MachineID: m.MachineID(), Schematic: data}.marshal(), nil

	case MethodDeleteMachine:
		var req machineRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		return nil, b.eng.DeleteMachine(ctx, req.MachineID)

	case MethodGetSchematic:
		var req schematicRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		s, err := b.eng.GetSchematic(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		return encodeSchematicMessage(s)

	case MethodStoreSchematic:
		var req schematicMessage
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		s, err := decodeSchematic[S, I](method, req.Schematic)
		if err != nil {
			return nil, err
		}
		stored, err := b.eng.StoreSchematic(ctx, s)
		if err != nil {
			return nil, err
		}
		return encodeSchematicMessage(stored)

	case MethodSendInput:
		var req sendInputRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		input, err := wire.Decode[I](req.Input)
		if err != nil {
			return nil, badRequest(method, err)
		}
		m, err := b.eng.GetMachine(ctx, req.MachineID)
		if err != nil {
			return nil, err
		}
		st, err := m.Send(ctx, input, api.WithParameter(req.Parameter))
		if err != nil {
			return nil, err
		}
		return encodeStateResponse(st)

	case MethodGetCurrentState:
		var req machineRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		m, err := b.eng.GetMachine(ctx, req.MachineID)
		if err != nil {
			return nil, err
		}
		st, err := m.CurrentState(ctx)
		if err != nil {
			return nil, err
		}
		return encodeStateResponse(st)

	case MethodGetMetadata:
		var req machineRequest
		if err := req.unmarshal(payload); err != nil {
			return nil, badRequest(method, err)
		}
		m, err := b.eng.GetMachine(ctx, req.MachineID)
		if err != nil {
			return nil, err
		}
		md, err := m.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		return wire.EncodeStringMap(md), nil

	default:
		return nil, &api.Error{Kind: api.KindNotFound, Op: method, Err: fmt.Errorf("unknown method %q", method)}
	}
}

func (b *engineBinding[S, I]) createMachine(ctx context.Context, req createMachineRequest) ([]byte, error) {
	var (
		m   api.Machine[S, I]
		err error
	)
	switch {
	case len(req.Schematic) > 0:
		s, derr := decodeSchematic[S, I](MethodCreateMachine, req.Schematic)
		if derr != nil {
			return nil, derr
		}
		if req.MachineID != "" {
			m, err = b.eng.CreateMachineWithID(ctx, req.MachineID, s, req.Metadata)
		} else {
			m, err = b.eng.CreateMachine(ctx, s, req.Metadata)
		}
	case req.MachineID != "":
		s, serr := b.eng.GetSchematic(ctx, req.SchematicName)
		if serr != nil {
			return nil, serr
		}
		m, err = b.eng.CreateMachineWithID(ctx, req.MachineID, s, req.Metadata)
	default:
		m, err = b.eng.CreateMachineFromStore(ctx, req.SchematicName, req.Metadata)
	}
	if err != nil {
		return nil, err
	}
	return machineResponse{MachineID: m.MachineID()}.marshal(), nil
}

// decodeSchematic reports schematics that fail validation as such and any
// other decoding problem as a bad request.
func decodeSchematic[S, I comparable](method string, data []byte) (*api.Schematic[S, I], error) {
	s, err := wire.DecodeSchematic[S, I](data)
	if err == nil {
		return s, nil
	}
	var ve *api.ValidationError
	if errors.As(err, &ve) {
		return nil, err
	}
	return nil, badRequest(method, err)
}

func encodeSchematicMessage[S, I comparable](s *api.Schematic[S, I]) ([]byte, error) {
	data, err := wire.EncodeSchematic(s)
	if err != nil {
		return nil, err
	}
	return schematicMessage{Schematic: data}.marshal(), nil
}

func encodeStateResponse[S, I comparable](st *api.State[S, I]) ([]byte, error) {
	data, err := wire.EncodeState(st)
	if err != nil {
		return nil, err
	}
	return stateResponse{State: data}.marshal(), nil
}
