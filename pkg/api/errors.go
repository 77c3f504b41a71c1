package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by engines and stores. Callers should match them
// with errors.Is; concrete error types below carry additional context.
var (
	ErrValidation             = errors.New("schematic validation failed")
	ErrNoTransitionDefined    = errors.New("no transition defined")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrConnectorFailure       = errors.New("entry connector failed")
	ErrConnectorNotRegistered = errors.New("entry connector not registered")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrCancelled              = errors.New("operation cancelled")
	ErrTransport              = errors.New("transport failure")
	ErrInternal               = errors.New("internal error")

	ErrMachineNotFound   = fmt.Errorf("machine %w", ErrNotFound)
	ErrSchematicNotFound = fmt.Errorf("schematic %w", ErrNotFound)
	ErrMachineExists     = fmt.Errorf("machine %w", ErrAlreadyExists)
)

// Schematic violations reported inside a ValidationError.
var (
	ErrSchematicNameRequired   = errors.New("schematic name is required")
	ErrNoStates                = errors.New("schematic declares no states")
	ErrNoInitialState          = errors.New("no initial state declared")
	ErrMultipleInitialStates   = errors.New("more than one initial state declared")
	ErrDuplicateState          = errors.New("state declared more than once")
	ErrUnknownTransitionTarget = errors.New("transition targets an undeclared state")
	ErrUnknownTransitionSource = errors.New("transition originates from an undeclared state")
	ErrDuplicateTransition     = errors.New("input already handled by state")
	ErrEmptyConnectorKey       = errors.New("entry connector key is empty")
	ErrDuplicateSettingKey     = errors.New("entry connector setting already defined")
)

// Kind classifies an error so that it can cross a process boundary and be
// reconstructed on the other side.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNoTransition        Kind = "no_transition"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindConnectorFailure    Kind = "connector_failure"
	KindConfiguration       Kind = "configuration"
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindCancelled           Kind = "cancelled"
	KindTransport           Kind = "transport"
	KindInternal            Kind = "internal"
)

var kindSentinels = map[Kind]error{
	KindValidation:          ErrValidation,
	KindNoTransition:        ErrNoTransitionDefined,
	KindConcurrencyConflict: ErrConcurrencyConflict,
	KindConnectorFailure:    ErrConnectorFailure,
	KindConfiguration:       ErrConnectorNotRegistered,
	KindNotFound:            ErrNotFound,
	KindAlreadyExists:       ErrAlreadyExists,
	KindCancelled:           ErrCancelled,
	KindTransport:           ErrTransport,
	KindInternal:            ErrInternal,
}

// Sentinel returns the sentinel error matched by errors of this kind.
func (k Kind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrInternal
}

// ParseKind maps a wire name back to a Kind. Unknown names map to KindInternal.
func ParseKind(s string) Kind {
	k := Kind(strings.TrimSpace(s))
	if _, ok := kindSentinels[k]; ok {
		return k
	}
	return KindInternal
}

// KindOf reports the Kind of err. A nil error has no kind and yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	// The outermost typed error decides, whatever sentinel its cause wraps.
	var c classified
	if errors.As(err, &c) {
		return c.kind()
	}
	switch {
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoTransitionDefined):
		return KindNoTransition
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrConnectorNotRegistered):
		return KindConfiguration
	case errors.Is(err, ErrConnectorFailure):
		return KindConnectorFailure
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	default:
		return KindInternal
	}
}

// Error is a classified error. It matches the sentinel of its Kind with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind      Kind
	Op        string
	MachineID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("statum")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.MachineID != "" {
		b.WriteString(" machine ")
		b.WriteString(e.MachineID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(": ")
		b.WriteString(e.Kind.Sentinel().Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) kind() Kind { return e.Kind }

func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// Cancelled wraps cause as a KindCancelled error for op.
func Cancelled(op, machineID string, cause error) error {
	return &Error{Kind: KindCancelled, Op: op, MachineID: machineID, Err: cause}
}

// NoTransitionError reports an input that has no transition from the
// machine's current state.
type NoTransitionError struct {
	MachineID string
	State     any
	Input     any
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition defined for input %v from state %v on machine %s", e.Input, e.State, e.MachineID)
}

func (e *NoTransitionError) Unwrap() error { return ErrNoTransitionDefined }

func (e *NoTransitionError) kind() Kind { return KindNoTransition }

// ConnectorError reports an entry connector that failed and left no failure
// transition to fall back on.
type ConnectorError struct {
	ConnectorKey string
	MachineID    string
	Err          error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("entry connector %q failed on machine %s: %v", e.ConnectorKey, e.MachineID, e.Err)
}

func (e *ConnectorError) Unwrap() []error { return []error{ErrConnectorFailure, e.Err} }

func (e *ConnectorError) kind() Kind { return KindConnectorFailure }

// classified is implemented by the error types that carry their own Kind.
type classified interface {
	error
	kind() Kind
}

// ValidationError aggregates every violation found in a schematic.
type ValidationError struct {
	Schematic  string
	Violations []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	name := e.Schematic
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("schematic %s is invalid: %s", name, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Violations)+1)
	out = append(out, ErrValidation)
	return append(out, e.Violations...)
}
