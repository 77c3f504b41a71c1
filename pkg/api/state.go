package api

import "time"

// State is a committed snapshot of a machine.
//
// CommitTag changes on every successful commit, reentrant ones included.
// HasInput is false only for the state a machine was created in.
type State[S, I comparable] struct {
	MachineID string
	Value     S
	Input     I
	HasInput  bool
	Parameter string
	CommitTag string
	UpdatedAt time.Time
}

// SendOptions carries the optional arguments of Machine.Send.
type SendOptions struct {
	Parameter string
}

// SendOption configures a single Send call.
type SendOption func(*SendOptions)

// WithParameter attaches a free-form payload to the input. It is recorded on
// the committed state and handed to the entry connector.
func WithParameter(p string) SendOption {
	return func(o *SendOptions) {
		o.Parameter = p
	}
}

// ApplySendOptions folds opts into a SendOptions value.
func ApplySendOptions(opts []SendOption) SendOptions {
	var o SendOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
