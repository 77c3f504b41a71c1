package statum

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/statum/pkg/api"
)

// SchematicFile is the YAML form of a schematic.
//
//	name: turnstile
//	retry:
//	  enabled: true
//	  backoff: 5ms
//	states:
//	  - value: locked
//	    initial: true
//	    reentrant: [push]
//	    transitions:
//	      - {input: coin, to: unlocked}
//	  - value: unlocked
//	    on_entry:
//	      connector: log
//	      settings: {level: info}
//	      on_failure: push
//	    transitions:
//	      - {input: push, to: locked}
type SchematicFile[S, I comparable] struct {
	Name   string            `yaml:"name"`
	Retry  *RetryFile        `yaml:"retry,omitempty"`
	States []StateFile[S, I] `yaml:"states"`
}

// RetryFile is the YAML form of a RetryPolicy. Durations use
// time.ParseDuration syntax.
type RetryFile struct {
	Enabled    bool    `yaml:"enabled"`
	MaxRetries int     `yaml:"max_retries,omitempty"`
	Backoff    string  `yaml:"backoff,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
	MaxBackoff string  `yaml:"max_backoff,omitempty"`
}

// StateFile is the YAML form of a StateConfiguration.
type StateFile[S, I comparable] struct {
	Value       S                      `yaml:"value"`
	Initial     bool                   `yaml:"initial,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Reentrant   []I                    `yaml:"reentrant,omitempty"`
	Transitions []TransitionFile[S, I] `yaml:"transitions,omitempty"`
	OnEntry     *EntryFile[I]          `yaml:"on_entry,omitempty"`
}

// TransitionFile is the YAML form of a Transition.
type TransitionFile[S, I comparable] struct {
	Input I `yaml:"input"`
	To    S `yaml:"to"`
}

// EntryFile is the YAML form of an EntryConnector. OnFailure is a pointer
// so that an explicit zero value can be told apart from an absent key.
type EntryFile[I comparable] struct {
	Connector   string            `yaml:"connector"`
	Description string            `yaml:"description,omitempty"`
	Settings    map[string]string `yaml:"settings,omitempty"`
	OnFailure   *I                `yaml:"on_failure,omitempty"`
}

// LoadSchematicYAML reads and builds the schematic stored at path.
func LoadSchematicYAML[S, I comparable](path string) (*Schematic[S, I], error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read schematic file %q: %w", path, err)
	}
	return ParseSchematicYAML[S, I](data)
}

// ParseSchematicYAML builds a schematic from its YAML form. Unknown keys
// are rejected.
func ParseSchematicYAML[S, I comparable](data []byte) (*Schematic[S, I], error) {
	var file SchematicFile[S, I]
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty schematic document", api.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %w", api.ErrValidation, err)
	}
	def, err := file.Definition()
	if err != nil {
		return nil, err
	}
	return api.NewSchematic(def)
}

// Definition converts the file into a Definition without validating it.
func (f SchematicFile[S, I]) Definition() (Definition[S, I], error) {
	def := api.Definition[S, I]{Name: f.Name}
	if f.Retry != nil {
		p, err := f.Retry.Policy()
		if err != nil {
			return def, err
		}
		def.RetryPolicy = p
	}
	for _, st := range f.States {
		cfg := api.StateConfiguration[S, I]{
			Value:           st.Value,
			Initial:         st.Initial,
			Description:     st.Description,
			ReentrantInputs: st.Reentrant,
		}
		for _, tr := range st.Transitions {
			cfg.Transitions = append(cfg.Transitions, api.Transition[S, I]{Input: tr.Input, ResultantState: tr.To})
		}
		if e := st.OnEntry; e != nil {
			cfg.OnEntry = &api.EntryConnector[I]{
				ConnectorKey: e.Connector,
				Description:  e.Description,
				Settings:     e.Settings,
			}
			if e.OnFailure != nil {
				cfg.OnEntry.FailureTransition = &api.FailureTransition[I]{Input: *e.OnFailure}
			}
		}
		def.States = append(def.States, cfg)
	}
	return def, nil
}

// Policy converts the file into a RetryPolicy.
func (r RetryFile) Policy() (RetryPolicy, error) {
	p := RetryPolicy{
		Enabled:           r.Enabled,
		MaxRetries:        r.MaxRetries,
		BackoffMultiplier: r.Multiplier,
	}
	var err error
	if p.Backoff, err = parseDuration("backoff", r.Backoff); err != nil {
		return p, err
	}
	if p.MaxBackoff, err = parseDuration("max_backoff", r.MaxBackoff); err != nil {
		return p, err
	}
	return p, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: retry %s: %w", api.ErrValidation, field, err)
	}
	return d, nil
}
