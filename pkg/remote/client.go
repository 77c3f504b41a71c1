package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

const tracerName = "github.com/petrijr/statum/pkg/remote"

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	maxFrame   int
}

// ClientOption configures a remote StateEngine.
type ClientOption func(*clientConfig)

// WithHTTPClient sets the HTTP client used for calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) { cfg.httpClient = c }
}

// WithTimeout bounds every call that does not already carry a shorter
// deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) { cfg.timeout = d }
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cfg *clientConfig) { cfg.logger = l }
}

// client is the remote StateEngine. It holds no machine state; every
// operation is a round trip.
type client[S, I comparable] struct {
	endpoint  string
	stateType string
	inputType string
	cfg       clientConfig
}

// NewStateEngine returns a StateEngine that forwards every call to the
// server at baseURL.
func NewStateEngine[S, I comparable](baseURL string, opts ...ClientOption) (api.StateEngine[S, I], error) {
	if err := wire.CheckType[S](); err != nil {
		return nil, fmt.Errorf("state type %s: %w", wire.TypeName[S](), err)
	}
	if err := wire.CheckType[I](); err != nil {
		return nil, fmt.Errorf("input type %s: %w", wire.TypeName[I](), err)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q must be http or https", baseURL)
	}

	cfg := clientConfig{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		maxFrame:   wire.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client[S, I]{
		endpoint:  strings.TrimRight(u.String(), "/") + "/" + ServiceName + "/",
		stateType: wire.TypeName[S](),
		inputType: wire.TypeName[I](),
		cfg:       cfg,
	}, nil
}

// call performs one round trip and returns the response payload.
func (c *client[S, I]) call(ctx context.Context, method, machineID string, payload []byte) (out []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled(method, machineID, err)
	}
	if c.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "statum.remote."+method)
	span.SetAttributes(attribute.String("statum.machine_id", machineID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("statum.error_kind", string(api.KindOf(err))))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method,
		bytes.NewReader(wire.AppendFrame(nil, wire.FlagMessage, payload)))
	if err != nil {
		return nil, transportError(method, machineID, err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(HeaderStateType, c.stateType)
	req.Header.Set(HeaderInputType, c.inputType)
	if deadline, ok := ctx.Deadline(); ok {
		req.Header.Set(HeaderTimeout, strconv.FormatInt(max(time.Until(deadline).Milliseconds(), 1), 10))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, api.Cancelled(method, machineID, ctx.Err())
		}
		c.cfg.logger.DebugContext(ctx, "remote_call_failed", slog.String("method", method), slog.Any("error", err))
		return nil, transportError(method, machineID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	flag, body, err := wire.ReadFrame(resp.Body, c.cfg.maxFrame)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, api.Cancelled(method, machineID, ctx.Err())
		}
		return nil, transportError(method, machineID, fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}

	if flag == wire.FlagError {
		var er errorResponse
		if err := er.unmarshal(body); err != nil {
			return nil, transportError(method, machineID, err)
		}
		if er.MachineID == "" {
			er.MachineID = machineID
		}
		if api.ParseKind(er.Kind) == api.KindCancelled && deadlineOnly(ctx) {
			// The server ran out of the forwarded deadline.
			return nil, transportError(method, machineID, fmt.Errorf("%w: %s", context.DeadlineExceeded, er.Message))
		}
		return nil, fromErrorResponse(method, er)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, transportError(method, machineID, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return body, nil
}

func (c *client[S, I]) CreateMachine(ctx context.Context, schematic *api.Schematic[S, I], metadata map[string]string) (api.Machine[S, I], error) {
	return c.createInline(ctx, "", schematic, metadata)
}

func (c *client[S, I]) CreateMachineWithID(ctx context.Context, machineID string, schematic *api.Schematic[S, I], metadata map[string]string) (api.Machine[S, I], error) {
	if strings.TrimSpace(machineID) == "" {
		return nil, fmt.Errorf("%w: machine id is required", api.ErrValidation)
	}
	return c.createInline(ctx, machineID, schematic, metadata)
}

func (c *client[S, I]) createInline(ctx context.Context, machineID string, schematic *api.Schematic[S, I], metadata map[string]string) (api.Machine[S, I], error) {
	if schematic == nil {
		return nil, fmt.Errorf("%w: schematic is required", api.ErrValidation)
	}
	data, err := wire.EncodeSchematic(schematic)
	if err != nil {
		return nil, err
	}
	return c.create(ctx, createMachineRequest{Schematic: data, MachineID: machineID, Metadata: metadata}, schematic)
}

func (c *client[S, I]) CreateMachineFromStore(ctx context.Context, schematicName string, metadata map[string]string) (api.Machine[S, I], error) {
	return c.create(ctx, createMachineRequest{SchematicName: schematicName, Metadata: metadata}, nil)
}

func (c *client[S, I]) create(ctx context.Context, req createMachineRequest, schematic *api.Schematic[S, I]) (api.Machine[S, I], error) {
	out, err := c.call(ctx, MethodCreateMachine, req.MachineID, req.marshal())
	if err != nil {
		return nil, err
	}
	var resp machineResponse
	if err := resp.unmarshal(out); err != nil {
		return nil, transportError(MethodCreateMachine, req.MachineID, err)
	}
	return &machine[S, I]{client: c, id: resp.MachineID, schematic: schematic}, nil
}

func (c *client[S, I]) GetMachine(ctx context.Context, machineID string) (api.Machine[S, I], error) {
	if strings.TrimSpace(machineID) == "" {
		return nil, fmt.Errorf("%w: machine id is required", api.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, api.Cancelled("get machine", machineID, err)
	}
	return &machine[S, I]{client: c, id: machineID}, nil
}

func (c *client[S, I]) DeleteMachine(ctx context.Context, machineID string) error {
	_, err := c.call(ctx, MethodDeleteMachine, machineID, machineRequest{MachineID: machineID}.marshal())
	return err
}

func (c *client[S, I]) StoreSchematic(ctx context.Context, schematic *api.Schematic[S, I]) (*api.Schematic[S, I], error) {
	if schematic == nil {
		return nil, fmt.Errorf("%w: schematic is required", api.ErrValidation)
	}
	data, err := wire.EncodeSchematic(schematic)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, MethodStoreSchematic, "", schematicMessage{Schematic: data}.marshal())
	if err != nil {
		return nil, err
	}
	return c.decodeSchematicMessage(MethodStoreSchematic, out)
}

func (c *client[S, I]) GetSchematic(ctx context.Context, name string) (*api.Schematic[S, I], error) {
	out, err := c.call(ctx, MethodGetSchematic, "", schematicRequest{Name: name}.marshal())
	if err != nil {
		return nil, err
	}
	return c.decodeSchematicMessage(MethodGetSchematic, out)
}

func (c *client[S, I]) decodeSchematicMessage(method string, out []byte) (*api.Schematic[S, I], error) {
	var msg schematicMessage
	if err := msg.unmarshal(out); err != nil {
		return nil, transportError(method, "", err)
	}
	s, err := wire.DecodeSchematic[S, I](msg.Schematic)
	if err != nil {
		return nil, transportError(method, "", err)
	}
	return s, nil
}

// machine is a remote machine handle. Only the schematic is cached.
type machine[S, I comparable] struct {
	client *client[S, I]
	id     string

	mu        sync.Mutex
	schematic *api.Schematic[S, I]
}

func (m *machine[S, I]) MachineID() string { return m.id }

func (m *machine[S, I]) Send(ctx context.Context, input I, opts ...api.SendOption) (*api.State[S, I], error) {
	o := api.ApplySendOptions(opts)
	in, err := wire.Encode(input)
	if err != nil {
		return nil, err
	}
	req := sendInputRequest{MachineID: m.id, Input: in, Parameter: o.Parameter}
	out, err := m.client.call(ctx, MethodSendInput, m.id, req.marshal())
	if err != nil {
		return nil, err
	}
	return m.decodeState(MethodSendInput, out)
}

func (m *machine[S, I]) CurrentState(ctx context.Context) (*api.State[S, I], error) {
	out, err := m.client.call(ctx, MethodGetCurrentState, m.id, machineRequest{MachineID: m.id}.marshal())
	if err != nil {
		return nil, err
	}
	return m.decodeState(MethodGetCurrentState, out)
}

func (m *machine[S, I]) decodeState(method string, out []byte) (*api.State[S, I], error) {
	var resp stateResponse
	if err := resp.unmarshal(out); err != nil {
		return nil, transportError(method, m.id, err)
	}
	st, err := wire.DecodeState[S, I](resp.State)
	if err != nil {
		return nil, transportError(method, m.id, err)
	}
	return st, nil
}

func (m *machine[S, I]) Metadata(ctx context.Context) (map[string]string, error) {
	out, err := m.client.call(ctx, MethodGetMetadata, m.id, machineRequest{MachineID: m.id}.marshal())
	if err != nil {
		return nil, err
	}
	md, err := wire.DecodeStringMap(out)
	if err != nil {
		return nil, transportError(MethodGetMetadata, m.id, err)
	}
	return md, nil
}

func (m *machine[S, I]) Schematic(ctx context.Context) (*api.Schematic[S, I], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schematic != nil {
		return m.schematic, nil
	}
	out, err := m.client.call(ctx, MethodGetMachine, m.id, machineRequest{MachineID: m.id}.marshal())
	if err != nil {
		return nil, err
	}
	var resp machineResponse
	if err := resp.unmarshal(out); err != nil {
		return nil, transportError(MethodGetMachine, m.id, err)
	}
	s, err := wire.DecodeSchematic[S, I](resp.Schematic)
	if err != nil {
		return nil, transportError(MethodGetMachine, m.id, err)
	}
	m.schematic = s
	return s, nil
}

// deadlineOnly reports whether ctx carries a deadline and was not cancelled
// by the caller.
func deadlineOnly(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok && !errors.Is(ctx.Err(), context.Canceled)
}
