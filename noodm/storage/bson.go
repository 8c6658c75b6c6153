package storage

import (
	"fmt"
	"time"

	"github.com/arthur-debert/noodm/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BSONAdapter stores the snapshot as a BSON file. BSON carries dates and
// binary natively so no transformers are registered. Dates keep millisecond
// precision.
type BSONAdapter struct {
	*fileAdapter
}

// NewBSONAdapter creates a BSON file adapter for path
func NewBSONAdapter(path string, opts ...Option) *BSONAdapter {
	return &BSONAdapter{fileAdapter: newFileAdapter(path, bsonCodec{}, opts)}
}

// Transformers implements Adapter.Transformers
func (a *BSONAdapter) Transformers() Transformers {
	return nil
}

// Constraints implements Adapter.Constraints
func (a *BSONAdapter) Constraints() map[string][]types.Validator {
	return nil
}

// EncodeBSON renders snap as a BSON document
func EncodeBSON(snap *Snapshot, now time.Time) ([]byte, error) {
	wire, err := toWire(snap, now, nil)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal BSON: %w", err)
	}
	return data, nil
}

// DecodeBSON parses a snapshot written by EncodeBSON
func DecodeBSON(data []byte) (*Snapshot, error) {
	var wire snapshotWire
	if err := bson.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse BSON: %w", err)
	}
	for i := range wire.Collections {
		for name, fw := range wire.Collections[i].Fields {
			for rule, param := range fw.Rules {
				fw.Rules[rule] = plainBSON(param)
			}
			wire.Collections[i].Fields[name] = fw
		}
	}
	return fromWire(&wire, valueFromBSON, nil)
}

// valueFromBSON converts a decoded BSON scalar into a Value
func valueFromBSON(raw interface{}) (types.Value, error) {
	switch x := raw.(type) {
	case primitive.DateTime:
		return types.Date(x.Time().UTC()), nil
	case primitive.Binary:
		return types.Blob(x.Data), nil
	case primitive.Null, primitive.Undefined:
		return types.Null(), nil
	case time.Time:
		return types.Date(x.UTC()), nil
	}
	return types.ValueOf(raw)
}

// plainBSON unwraps BSON container types into plain Go values
func plainBSON(raw interface{}) interface{} {
	switch x := raw.(type) {
	case primitive.A:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = plainBSON(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(x))
		for _, e := range x {
			out[e.Key] = plainBSON(e.Value)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	}
	return raw
}

type bsonCodec struct{}

func (bsonCodec) encode(snap *Snapshot, now time.Time) ([]byte, error) {
	return EncodeBSON(snap, now)
}

func (bsonCodec) decode(data []byte) (*Snapshot, error) {
	return DecodeBSON(data)
}
