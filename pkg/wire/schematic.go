package wire

import (
	"fmt"
	"math"
	"time"

	"github.com/petrijr/statum/pkg/api"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the schematic message.
const (
	schematicName  protowire.Number = 1
	schematicState protowire.Number = 2
	schematicRetry protowire.Number = 3

	stateValue       protowire.Number = 1
	stateInitial     protowire.Number = 2
	stateDescription protowire.Number = 3
	stateReentrant   protowire.Number = 4
	stateTransition  protowire.Number = 5
	stateOnEntry     protowire.Number = 6

	transitionInput  protowire.Number = 1
	transitionTarget protowire.Number = 2

	entryKey         protowire.Number = 1
	entryDescription protowire.Number = 2
	entrySetting     protowire.Number = 3
	entryFailure     protowire.Number = 4

	failureInput protowire.Number = 1

	retryEnabled    protowire.Number = 1
	retryMax        protowire.Number = 2
	retryBackoff    protowire.Number = 3
	retryMultiplier protowire.Number = 4
	retryMaxBackoff protowire.Number = 5
)

// EncodeSchematic serialises s. The encoding preserves state declaration
// order, so decoding yields a schematic with an identical Definition.
func EncodeSchematic[S, I comparable](s *api.Schematic[S, I]) ([]byte, error) {
	def := s.Definition()

	var b []byte
	b = AppendString(b, schematicName, def.Name)
	for _, cfg := range def.States {
		msg, err := encodeStateConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode schematic %s: state %v: %w", def.Name, cfg.Value, err)
		}
		b = AppendBytes(b, schematicState, msg)
	}
	b = AppendBytes(b, schematicRetry, encodeRetry(def.RetryPolicy))
	return b, nil
}

// DecodeSchematic deserialises and validates a schematic.
func DecodeSchematic[S, I comparable](b []byte) (*api.Schematic[S, I], error) {
	var def api.Definition[S, I]
	err := RangeFields(b, func(f Field) error {
		switch f.Num {
		case schematicName:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			def.Name = f.String()
		case schematicState:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			cfg, err := decodeStateConfig[S, I](f.Bytes)
			if err != nil {
				return err
			}
			def.States = append(def.States, cfg)
		case schematicRetry:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			p, err := decodeRetry(f.Bytes)
			if err != nil {
				return err
			}
			def.RetryPolicy = p
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode schematic: %w", err)
	}
	return api.NewSchematic(def)
}

func encodeStateConfig[S, I comparable](cfg api.StateConfiguration[S, I]) ([]byte, error) {
	value, err := Encode(cfg.Value)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = AppendBytes(b, stateValue, value)
	if cfg.Initial {
		b = AppendBool(b, stateInitial, true)
	}
	if cfg.Description != "" {
		b = AppendString(b, stateDescription, cfg.Description)
	}
	for _, in := range cfg.ReentrantInputs {
		enc, err := Encode(in)
		if err != nil {
			return nil, err
		}
		b = AppendBytes(b, stateReentrant, enc)
	}
	for _, tr := range cfg.Transitions {
		in, err := Encode(tr.Input)
		if err != nil {
			return nil, err
		}
		target, err := Encode(tr.ResultantState)
		if err != nil {
			return nil, err
		}
		var msg []byte
		msg = AppendBytes(msg, transitionInput, in)
		msg = AppendBytes(msg, transitionTarget, target)
		b = AppendBytes(b, stateTransition, msg)
	}
	if cfg.OnEntry != nil {
		msg, err := encodeEntry(cfg.OnEntry)
		if err != nil {
			return nil, err
		}
		b = AppendBytes(b, stateOnEntry, msg)
	}
	return b, nil
}

func encodeEntry[I comparable](e *api.EntryConnector[I]) ([]byte, error) {
	var b []byte
	b = AppendString(b, entryKey, e.ConnectorKey)
	if e.Description != "" {
		b = AppendString(b, entryDescription, e.Description)
	}
	b = AppendStringMap(b, entrySetting, e.Settings)
	if e.FailureTransition != nil {
		in, err := Encode(e.FailureTransition.Input)
		if err != nil {
			return nil, err
		}
		b = AppendBytes(b, entryFailure, AppendBytes(nil, failureInput, in))
	}
	return b, nil
}

func decodeStateConfig[S, I comparable](b []byte) (api.StateConfiguration[S, I], error) {
	var cfg api.StateConfiguration[S, I]
	var hasValue bool
	err := RangeFields(b, func(f Field) error {
		switch f.Num {
		case stateValue:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			v, err := Decode[S](f.Bytes)
			if err != nil {
				return err
			}
			cfg.Value, hasValue = v, true
		case stateInitial:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			cfg.Initial = protowire.DecodeBool(f.Varint)
		case stateDescription:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			cfg.Description = f.String()
		case stateReentrant:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			in, err := Decode[I](f.Bytes)
			if err != nil {
				return err
			}
			cfg.ReentrantInputs = append(cfg.ReentrantInputs, in)
		case stateTransition:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			tr, err := decodeTransition[S, I](f.Bytes)
			if err != nil {
				return err
			}
			cfg.Transitions = append(cfg.Transitions, tr)
		case stateOnEntry:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			e, err := decodeEntry[I](f.Bytes)
			if err != nil {
				return err
			}
			cfg.OnEntry = e
		}
		return nil
	})
	if err != nil {
		return cfg, err
	}
	if !hasValue {
		return cfg, fmt.Errorf("%w: state without value", ErrMalformed)
	}
	return cfg, nil
}

func decodeTransition[S, I comparable](b []byte) (api.Transition[S, I], error) {
	var tr api.Transition[S, I]
	var hasInput, hasTarget bool
	err := RangeFields(b, func(f Field) error {
		if err := expect(f, protowire.BytesType); err != nil {
			return err
		}
		var err error
		switch f.Num {
		case transitionInput:
			tr.Input, err = Decode[I](f.Bytes)
			hasInput = true
		case transitionTarget:
			tr.ResultantState, err = Decode[S](f.Bytes)
			hasTarget = true
		}
		return err
	})
	if err != nil {
		return tr, err
	}
	if !hasInput || !hasTarget {
		return tr, fmt.Errorf("%w: incomplete transition", ErrMalformed)
	}
	return tr, nil
}

func decodeEntry[I comparable](b []byte) (*api.EntryConnector[I], error) {
	e := &api.EntryConnector[I]{}
	err := RangeFields(b, func(f Field) error {
		if err := expect(f, protowire.BytesType); err != nil {
			return err
		}
		switch f.Num {
		case entryKey:
			e.ConnectorKey = f.String()
		case entryDescription:
			e.Description = f.String()
		case entrySetting:
			if e.Settings == nil {
				e.Settings = make(map[string]string)
			}
			return ConsumeStringMapEntry(f.Bytes, e.Settings)
		case entryFailure:
			return RangeFields(f.Bytes, func(ff Field) error {
				if ff.Num != failureInput {
					return nil
				}
				if err := expect(ff, protowire.BytesType); err != nil {
					return err
				}
				in, err := Decode[I](ff.Bytes)
				if err != nil {
					return err
				}
				e.FailureTransition = &api.FailureTransition[I]{Input: in}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func encodeRetry(p api.RetryPolicy) []byte {
	var b []byte
	b = AppendBool(b, retryEnabled, p.Enabled)
	b = AppendSigned(b, retryMax, int64(p.MaxRetries))
	b = AppendSigned(b, retryBackoff, int64(p.Backoff))
	b = protowire.AppendTag(b, retryMultiplier, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(p.BackoffMultiplier))
	b = AppendSigned(b, retryMaxBackoff, int64(p.MaxBackoff))
	return b
}

func decodeRetry(b []byte) (api.RetryPolicy, error) {
	var p api.RetryPolicy
	err := RangeFields(b, func(f Field) error {
		switch f.Num {
		case retryMultiplier:
			if err := expect(f, protowire.Fixed64Type); err != nil {
				return err
			}
			p.BackoffMultiplier = math.Float64frombits(f.Fixed64)
			return nil
		case retryEnabled, retryMax, retryBackoff, retryMaxBackoff:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
		default:
			return nil
		}
		switch f.Num {
		case retryEnabled:
			p.Enabled = protowire.DecodeBool(f.Varint)
		case retryMax:
			p.MaxRetries = int(protowire.DecodeZigZag(f.Varint))
		case retryBackoff:
			p.Backoff = time.Duration(protowire.DecodeZigZag(f.Varint))
		case retryMaxBackoff:
			p.MaxBackoff = time.Duration(protowire.DecodeZigZag(f.Varint))
		}
		return nil
	})
	return p, err
}
