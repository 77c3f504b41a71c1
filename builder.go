package statum

import (
	"fmt"

	"github.com/petrijr/statum/pkg/api"
)

// SchematicBuilder provides a fluent API for declaring schematics:
//
//	schematic, err := statum.NewSchematic[int, int]("3SlotSemaphore").
//	    WithStateConflictRetries().
//	    WithState(0, func(s *statum.StateBuilder[int, int]) {
//	        s.AsInitialState().DescribedAs("No slots filled.").WithReentrance(-1)
//	    }).
//	    WithState(1, func(s *statum.StateBuilder[int, int]) {
//	        s.WithTransitionFrom(0, 1).WithTransitionTo(0, -1)
//	    }).
//	    Build()
//
// The builder never fails part way. Every problem is collected and reported
// together by Build.
type SchematicBuilder[S, I comparable] struct {
	name   string
	states []*StateBuilder[S, I]
	slots  map[S]int
	retry  api.RetryPolicy
}

// NewSchematic starts a schematic with the given name.
func NewSchematic[S, I comparable](name string) *SchematicBuilder[S, I] {
	return &SchematicBuilder[S, I]{name: name, slots: make(map[S]int)}
}

// Name returns the schematic name.
func (b *SchematicBuilder[S, I]) Name() string {
	return b.name
}

// WithState declares value and lets configure describe it. configure may be
// nil for a plain state. Declaring a value again replaces its earlier
// configuration but keeps its position.
func (b *SchematicBuilder[S, I]) WithState(value S, configure func(*StateBuilder[S, I])) *SchematicBuilder[S, I] {
	sb := &StateBuilder[S, I]{cfg: api.StateConfiguration[S, I]{Value: value}}
	if configure != nil {
		configure(sb)
	}
	if i, ok := b.slots[value]; ok {
		b.states[i] = sb
		return b
	}
	b.slots[value] = len(b.states)
	b.states = append(b.states, sb)
	return b
}

// WithStateConflictRetries makes Send retry commits that lose a race until
// they succeed or the context ends, without delay between attempts.
func (b *SchematicBuilder[S, I]) WithStateConflictRetries() *SchematicBuilder[S, I] {
	b.retry = api.RetryPolicy{Enabled: true}
	return b
}

// WithStateConflictRetryPolicy sets the conflict retry policy, usually built
// with ConflictRetry.
func (b *SchematicBuilder[S, I]) WithStateConflictRetryPolicy(p RetryPolicy) *SchematicBuilder[S, I] {
	b.retry = p
	return b
}

// Definition returns the definition accumulated so far. Transitions declared
// with WithTransitionFrom are attached to their source states.
func (b *SchematicBuilder[S, I]) Definition() Definition[S, I] {
	def, _ := b.assemble()
	return def
}

func (b *SchematicBuilder[S, I]) assemble() (api.Definition[S, I], []error) {
	def := api.Definition[S, I]{
		Name:        b.name,
		States:      make([]api.StateConfiguration[S, I], 0, len(b.states)),
		RetryPolicy: b.retry,
	}
	var violations []error

	for _, sb := range b.states {
		def.States = append(def.States, sb.config())
		violations = append(violations, sb.violations...)
	}

	for _, sb := range b.states {
		for _, in := range sb.incoming {
			i, ok := b.slots[in.from]
			if !ok {
				violations = append(violations, fmt.Errorf("%w: %v -> %v", api.ErrUnknownTransitionSource, in.from, sb.cfg.Value))
				continue
			}
			def.States[i].Transitions = append(def.States[i].Transitions, api.Transition[S, I]{
				Input:          in.input,
				ResultantState: sb.cfg.Value,
			})
		}
	}
	return def, violations
}

// Build validates the accumulated declarations and returns the immutable
// schematic. All violations are reported in a single *api.ValidationError.
func (b *SchematicBuilder[S, I]) Build() (*Schematic[S, I], error) {
	def, violations := b.assemble()
	violations = append(violations, api.Validate(def)...)
	if len(violations) > 0 {
		return nil, &api.ValidationError{Schematic: b.name, Violations: violations}
	}
	return api.NewSchematic(def)
}

// MustBuild is like Build but panics on error.
// Useful for package level schematics.
func (b *SchematicBuilder[S, I]) MustBuild() *Schematic[S, I] {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

type incoming[S, I comparable] struct {
	from  S
	input I
}

// StateBuilder describes one state. It is only valid inside the configure
// callback passed to SchematicBuilder.WithState.
type StateBuilder[S, I comparable] struct {
	cfg        api.StateConfiguration[S, I]
	incoming   []incoming[S, I]
	violations []error
}

// AsInitialState marks the state as the one new machines start in.
func (s *StateBuilder[S, I]) AsInitialState() *StateBuilder[S, I] {
	s.cfg.Initial = true
	return s
}

// DescribedAs sets a human readable description.
func (s *StateBuilder[S, I]) DescribedAs(description string) *StateBuilder[S, I] {
	s.cfg.Description = description
	return s
}

// WithReentrance lets input loop back into this state. The entry connector
// still runs.
func (s *StateBuilder[S, I]) WithReentrance(input I) *StateBuilder[S, I] {
	s.cfg.ReentrantInputs = append(s.cfg.ReentrantInputs, input)
	return s
}

// WithTransitionTo adds a transition from this state to target on input.
func (s *StateBuilder[S, I]) WithTransitionTo(target S, input I) *StateBuilder[S, I] {
	s.cfg.Transitions = append(s.cfg.Transitions, api.Transition[S, I]{Input: input, ResultantState: target})
	return s
}

// WithTransitionFrom adds a transition from source to this state on input.
// source may be declared before or after this state.
func (s *StateBuilder[S, I]) WithTransitionFrom(source S, input I) *StateBuilder[S, I] {
	s.incoming = append(s.incoming, incoming[S, I]{from: source, input: input})
	return s
}

// WithOnEntry attaches the connector registered under key. configure may be
// nil.
func (s *StateBuilder[S, I]) WithOnEntry(key string, configure func(*EntryBuilder[I])) *StateBuilder[S, I] {
	eb := &EntryBuilder[I]{entry: api.EntryConnector[I]{ConnectorKey: key}}
	if configure != nil {
		configure(eb)
	}
	entry := eb.entry
	s.cfg.OnEntry = &entry
	for _, err := range eb.violations {
		s.violations = append(s.violations, fmt.Errorf("state %v: %w", s.cfg.Value, err))
	}
	return s
}

func (s *StateBuilder[S, I]) config() api.StateConfiguration[S, I] {
	cfg := s.cfg
	cfg.ReentrantInputs = append([]I(nil), s.cfg.ReentrantInputs...)
	cfg.Transitions = append([]api.Transition[S, I](nil), s.cfg.Transitions...)
	return cfg
}

// EntryBuilder describes an entry connector.
type EntryBuilder[I comparable] struct {
	entry      api.EntryConnector[I]
	violations []error
}

// DescribedAs sets a human readable description of the connector call.
func (e *EntryBuilder[I]) DescribedAs(description string) *EntryBuilder[I] {
	e.entry.Description = description
	return e
}

// WithSetting adds a setting handed to the connector. Keys must be unique.
func (e *EntryBuilder[I]) WithSetting(key, value string) *EntryBuilder[I] {
	if e.entry.Settings == nil {
		e.entry.Settings = make(map[string]string)
	}
	if _, dup := e.entry.Settings[key]; dup {
		e.violations = append(e.violations, fmt.Errorf("%w: %q", api.ErrDuplicateSettingKey, key))
		return e
	}
	e.entry.Settings[key] = value
	return e
}

// OnFailureSend makes the engine send input instead when the connector
// fails. Any value of I is allowed, the zero value included.
func (e *EntryBuilder[I]) OnFailureSend(input I) *EntryBuilder[I] {
	e.entry.FailureTransition = &api.FailureTransition[I]{Input: input}
	return e
}
