package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/petrijr/statum/pkg/api"
)

const statusClientClosedRequest = 499

// reasons lists sentinels more specific than their kind. The first match
// wins, so narrower errors come first.
var reasons = []struct {
	name string
	err  error
}{
	{"machine_not_found", api.ErrMachineNotFound},
	{"schematic_not_found", api.ErrSchematicNotFound},
	{"machine_exists", api.ErrMachineExists},
	{"connector_not_registered", api.ErrConnectorNotRegistered},
}

func statusFor(kind api.Kind) int {
	switch kind {
	case api.KindValidation:
		return http.StatusBadRequest
	case api.KindNoTransition, api.KindConcurrencyConflict, api.KindAlreadyExists:
		return http.StatusConflict
	case api.KindConnectorFailure:
		return http.StatusFailedDependency
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// toErrorResponse flattens err for the wire.
func toErrorResponse(err error) errorResponse {
	kind := api.KindOf(err)
	resp := errorResponse{
		Kind:    string(kind),
		Message: strings.TrimPrefix(err.Error(), "statum: "),
	}

	var (
		ae *api.Error
		nt *api.NoTransitionError
		ce *api.ConnectorError
	)
	switch {
	case errors.As(err, &nt):
		resp.MachineID = nt.MachineID
	case errors.As(err, &ce):
		resp.MachineID = ce.MachineID
	case errors.As(err, &ae):
		resp.MachineID = ae.MachineID
	}

	for _, r := range reasons {
		if api.KindOf(r.err) == kind && errors.Is(err, r.err) {
			resp.Reason = r.name
			break
		}
	}
	return resp
}

// Error is the cause attached to errors rebuilt from a server response. Its
// message is the server's; it unwraps to the most specific sentinel the
// server reported.
type Error struct {
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// fromErrorResponse rebuilds a classified error that matches the same
// sentinels with errors.Is as the server side error did.
func fromErrorResponse(op string, resp errorResponse) error {
	kind := api.ParseKind(resp.Kind)
	cause := kind.Sentinel()
	for _, r := range reasons {
		if r.name == resp.Reason {
			cause = r.err
			break
		}
	}
	return &api.Error{
		Kind:      kind,
		Op:        op,
		MachineID: resp.MachineID,
		Err:       &Error{Message: resp.Message, cause: cause},
	}
}

func transportError(op, machineID string, err error) error {
	return &api.Error{
		Kind:      api.KindTransport,
		Op:        op,
		MachineID: machineID,
		Err:       fmt.Errorf("%w: %w", api.ErrTransport, err),
	}
}
