package api

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Transition maps an input to the state it leads to.
type Transition[S, I comparable] struct {
	Input          I
	ResultantState S
}

// FailureTransition names the input sent in place of the original one when
// an entry connector fails. Its presence on an EntryConnector is the signal
// that compensation is configured; there is no sentinel input value.
type FailureTransition[I comparable] struct {
	Input I
}

// EntryConnector describes the side effect invoked when a state is entered.
type EntryConnector[I comparable] struct {
	ConnectorKey      string
	Description       string
	Settings          map[string]string
	FailureTransition *FailureTransition[I]
}

// StateConfiguration is the declaration of one state within a Schematic.
type StateConfiguration[S, I comparable] struct {
	Value           S
	Initial         bool
	Description     string
	ReentrantInputs []I
	Transitions     []Transition[S, I]
	OnEntry         *EntryConnector[I]
}

// Definition is the plain data form of a Schematic. Builders and decoders
// produce one and hand it to NewSchematic for validation.
type Definition[S, I comparable] struct {
	Name        string
	States      []StateConfiguration[S, I]
	RetryPolicy RetryPolicy
}

// Schematic is an immutable, validated state machine blueprint.
type Schematic[S, I comparable] struct {
	name    string
	initial S
	order   []S
	states  map[S]StateConfiguration[S, I]
	retry   RetryPolicy
}

// NewSchematic validates def and returns the resulting Schematic. Every
// violation is collected into a single *ValidationError.
func NewSchematic[S, I comparable](def Definition[S, I]) (*Schematic[S, I], error) {
	if violations := Validate(def); len(violations) > 0 {
		return nil, &ValidationError{Schematic: def.Name, Violations: violations}
	}

	s := &Schematic[S, I]{
		name:   def.Name,
		order:  make([]S, 0, len(def.States)),
		states: make(map[S]StateConfiguration[S, I], len(def.States)),
		retry:  def.RetryPolicy,
	}
	for _, cfg := range def.States {
		cfg = cloneState(cfg)
		if cfg.Initial {
			s.initial = cfg.Value
		}
		s.order = append(s.order, cfg.Value)
		s.states[cfg.Value] = cfg
	}
	return s, nil
}

// Validate returns every violation in def, or nil when def is a valid
// schematic.
func Validate[S, I comparable](def Definition[S, I]) []error {
	var violations []error
	if strings.TrimSpace(def.Name) == "" {
		violations = append(violations, ErrSchematicNameRequired)
	}
	if len(def.States) == 0 {
		return append(violations, ErrNoStates)
	}

	declared := make(map[S]bool, len(def.States))
	initials := 0
	for _, cfg := range def.States {
		if declared[cfg.Value] {
			violations = append(violations, fmt.Errorf("%w: %v", ErrDuplicateState, cfg.Value))
		}
		declared[cfg.Value] = true
		if cfg.Initial {
			initials++
		}
	}
	switch {
	case initials == 0:
		violations = append(violations, ErrNoInitialState)
	case initials > 1:
		violations = append(violations, fmt.Errorf("%w: %d states marked initial", ErrMultipleInitialStates, initials))
	}

	for _, cfg := range def.States {
		handled := make(map[I]bool, len(cfg.Transitions)+len(cfg.ReentrantInputs))
		for _, in := range cfg.ReentrantInputs {
			if handled[in] {
				violations = append(violations, fmt.Errorf("%w: state %v input %v", ErrDuplicateTransition, cfg.Value, in))
			}
			handled[in] = true
		}
		for _, tr := range cfg.Transitions {
			if handled[tr.Input] {
				violations = append(violations, fmt.Errorf("%w: state %v input %v", ErrDuplicateTransition, cfg.Value, tr.Input))
			}
			handled[tr.Input] = true
			if !declared[tr.ResultantState] {
				violations = append(violations, fmt.Errorf("%w: %v -> %v", ErrUnknownTransitionTarget, cfg.Value, tr.ResultantState))
			}
		}
		if cfg.OnEntry != nil && strings.TrimSpace(cfg.OnEntry.ConnectorKey) == "" {
			violations = append(violations, fmt.Errorf("%w: state %v", ErrEmptyConnectorKey, cfg.Value))
		}
	}
	return violations
}

// Name returns the schematic name.
func (s *Schematic[S, I]) Name() string { return s.name }

// InitialState returns the state new machines start in.
func (s *Schematic[S, I]) InitialState() S { return s.initial }

// RetryPolicy returns the conflict retry policy applied by Send.
func (s *Schematic[S, I]) RetryPolicy() RetryPolicy { return s.retry }

// States returns the declared state values in declaration order.
func (s *Schematic[S, I]) States() []S { return slices.Clone(s.order) }

// State returns a copy of the configuration for value.
func (s *Schematic[S, I]) State(value S) (StateConfiguration[S, I], bool) {
	cfg, ok := s.states[value]
	if !ok {
		return StateConfiguration[S, I]{}, false
	}
	return cloneState(cfg), true
}

// ResolveTransition returns the state reached by sending input while in
// from. A reentrant input resolves to from itself. The returned connector,
// if any, belongs to the target state and must not be modified.
func (s *Schematic[S, I]) ResolveTransition(from S, input I) (S, *EntryConnector[I], bool) {
	cfg, ok := s.states[from]
	if !ok {
		var zero S
		return zero, nil, false
	}
	if slices.Contains(cfg.ReentrantInputs, input) {
		return from, cfg.OnEntry, true
	}
	for _, tr := range cfg.Transitions {
		if tr.Input == input {
			return tr.ResultantState, s.states[tr.ResultantState].OnEntry, true
		}
	}
	var zero S
	return zero, nil, false
}

// Definition returns the plain data form of the schematic.
func (s *Schematic[S, I]) Definition() Definition[S, I] {
	def := Definition[S, I]{
		Name:        s.name,
		States:      make([]StateConfiguration[S, I], 0, len(s.order)),
		RetryPolicy: s.retry,
	}
	for _, v := range s.order {
		def.States = append(def.States, cloneState(s.states[v]))
	}
	return def
}

// Copy returns an independent copy of the schematic.
func (s *Schematic[S, I]) Copy() *Schematic[S, I] {
	out := &Schematic[S, I]{
		name:    s.name,
		initial: s.initial,
		order:   slices.Clone(s.order),
		states:  make(map[S]StateConfiguration[S, I], len(s.states)),
		retry:   s.retry,
	}
	for k, v := range s.states {
		out.states[k] = cloneState(v)
	}
	return out
}

// cloneState deep-copies cfg and normalises empty collections to nil so that
// equal schematics compare equal regardless of how they were built.
func cloneState[S, I comparable](cfg StateConfiguration[S, I]) StateConfiguration[S, I] {
	out := cfg
	out.ReentrantInputs = nil
	if len(cfg.ReentrantInputs) > 0 {
		out.ReentrantInputs = slices.Clone(cfg.ReentrantInputs)
	}
	out.Transitions = nil
	if len(cfg.Transitions) > 0 {
		out.Transitions = slices.Clone(cfg.Transitions)
	}
	if cfg.OnEntry != nil {
		entry := *cfg.OnEntry
		entry.Settings = nil
		if len(cfg.OnEntry.Settings) > 0 {
			entry.Settings = maps.Clone(cfg.OnEntry.Settings)
		}
		if cfg.OnEntry.FailureTransition != nil {
			ft := *cfg.OnEntry.FailureTransition
			entry.FailureTransition = &ft
		}
		out.OnEntry = &entry
	}
	return out
}
