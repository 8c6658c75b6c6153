package storage

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// JSONAdapter stores the snapshot as an indented JSON file. Dates and blobs
// have no JSON representation and are stored as tagged envelope strings.
type JSONAdapter struct {
	*fileAdapter
}

// NewJSONAdapter creates a JSON file adapter for path
func NewJSONAdapter(path string, opts ...Option) *JSONAdapter {
	return &JSONAdapter{fileAdapter: newFileAdapter(path, jsonCodec{}, opts)}
}

// Transformers implements Adapter.Transformers
func (a *JSONAdapter) Transformers() Transformers {
	return JSONTransformers()
}

// Constraints implements Adapter.Constraints
func (a *JSONAdapter) Constraints() map[string][]types.Validator {
	return JSONConstraints()
}

// JSONConstraints returns the validators imposed by the JSON format
func JSONConstraints() map[string][]types.Validator {
	return map[string][]types.Validator{
		types.TagNumber: {types.Check("finite", types.Value.IsFinite)},
	}
}

// envelope is the durable text form of values JSON cannot carry
type envelope struct {
	Type   string `json:"$type"`
	String string `json:"$string"`
}

const envelopePrefix = `{"$type":`

// JSONTransformers returns the date and blob transformers of the JSON format
func JSONTransformers() Transformers {
	return Transformers{
		types.TagDate: {
			Set: func(v types.Value) (types.Value, error) {
				t, ok := v.Time()
				if !ok {
					return v, fmt.Errorf("expected a date, got %s", v.Tag())
				}
				return wrapEnvelope(types.TagDate, t.Format(time.RFC3339Nano))
			},
			Get: func(v types.Value) (types.Value, error) {
				if _, ok := v.Time(); ok {
					return v, nil
				}
				s, ok := unwrapEnvelope(types.TagDate, v)
				if !ok {
					return types.Coerce(v, types.TagDate)
				}
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return v, fmt.Errorf("invalid date envelope: %w", err)
				}
				return types.Date(t), nil
			},
			Detect: func(v types.Value) bool {
				_, ok := unwrapEnvelope(types.TagDate, v)
				return ok
			},
		},
		types.TagBlob: {
			Set: func(v types.Value) (types.Value, error) {
				b, ok := v.Bytes()
				if !ok {
					return v, fmt.Errorf("expected a blob, got %s", v.Tag())
				}
				return wrapEnvelope(types.TagBlob, base64.StdEncoding.EncodeToString(b))
			},
			Get: func(v types.Value) (types.Value, error) {
				if _, ok := v.Bytes(); ok {
					return v, nil
				}
				s, ok := unwrapEnvelope(types.TagBlob, v)
				if !ok {
					return types.Coerce(v, types.TagBlob)
				}
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return v, fmt.Errorf("invalid blob envelope: %w", err)
				}
				return types.Blob(b), nil
			},
			Detect: func(v types.Value) bool {
				_, ok := unwrapEnvelope(types.TagBlob, v)
				return ok
			},
		},
	}
}

func wrapEnvelope(tag, s string) (types.Value, error) {
	data, err := json.Marshal(envelope{Type: tag, String: s})
	if err != nil {
		return types.Value{}, err
	}
	return types.String(string(data)), nil
}

func unwrapEnvelope(tag string, v types.Value) (string, bool) {
	s, ok := v.Str()
	if !ok || !strings.HasPrefix(s, envelopePrefix) {
		return "", false
	}
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil || env.Type != tag {
		return "", false
	}
	return env.String, true
}

// EncodeJSON renders snap as indented JSON
func EncodeJSON(snap *Snapshot, now time.Time) ([]byte, error) {
	wire, err := toWire(snap, now, JSONTransformers())
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// DecodeJSON parses a snapshot written by EncodeJSON
func DecodeJSON(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var wire snapshotWire
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return fromWire(&wire, types.ValueOf, JSONTransformers())
}

type jsonCodec struct{}

func (jsonCodec) encode(snap *Snapshot, now time.Time) ([]byte, error) {
	return EncodeJSON(snap, now)
}

func (jsonCodec) decode(data []byte) (*Snapshot, error) {
	return DecodeJSON(data)
}
