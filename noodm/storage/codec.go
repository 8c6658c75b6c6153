package storage

import (
	"fmt"
	"time"

	"github.com/arthur-debert/noodm/types"
)

// snapshotWire is the serialized shape shared by every backend
type snapshotWire struct {
	Metadata    Metadata         `json:"metadata" bson:"metadata"`
	Collections []collectionWire `json:"collections" bson:"collections"`
}

type collectionWire struct {
	Name   string               `json:"name" bson:"name"`
	Fields map[string]fieldWire `json:"fields,omitempty" bson:"fields,omitempty"`
	// Indexes are written for inspection only; they are rebuilt on load
	Indexes   map[string]map[string][]string `json:"indexes,omitempty" bson:"indexes,omitempty"`
	Documents []map[string]interface{}       `json:"documents" bson:"documents"`
}

type fieldWire struct {
	Type     string                 `json:"type,omitempty" bson:"type,omitempty"`
	Unique   bool                   `json:"unique,omitempty" bson:"unique,omitempty"`
	Indexed  bool                   `json:"indexed,omitempty" bson:"indexed,omitempty"`
	Nullable bool                   `json:"nullable,omitempty" bson:"nullable,omitempty"`
	Default  interface{}            `json:"default,omitempty" bson:"default,omitempty"`
	OnUpdate interface{}            `json:"on_update,omitempty" bson:"on_update,omitempty"`
	Rules    map[string]interface{} `json:"rules,omitempty" bson:"rules,omitempty"`
}

// valueDecoder turns a decoded wire scalar back into a Value
type valueDecoder func(interface{}) (types.Value, error)

// toWire copies snap into its wire shape, holding each collection's read lock
// while its documents are copied
func toWire(snap *Snapshot, now time.Time, tr Transformers) (*snapshotWire, error) {
	wire := &snapshotWire{Metadata: snap.Metadata}
	wire.Metadata.UpdatedAt = now
	if wire.Metadata.Version == "" {
		wire.Metadata.Version = SnapshotVersion
	}

	for _, name := range snap.Names() {
		cd, ok := snap.Collection(name)
		if !ok {
			continue
		}
		var cw collectionWire
		err := cd.Lock().Execute(ReadOperation, func() error {
			var err error
			cw, err = collectionToWire(cd, tr)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		wire.Collections = append(wire.Collections, cw)
	}
	return wire, nil
}

func collectionToWire(cd *CollectionData, tr Transformers) (collectionWire, error) {
	cw := collectionWire{
		Name:      cd.Meta.Name,
		Indexes:   cd.Indexes.Export(),
		Documents: make([]map[string]interface{}, 0, cd.Documents.Len()),
	}
	if len(cd.Meta.Fields) > 0 {
		cw.Fields = make(map[string]fieldWire, len(cd.Meta.Fields))
		for name, f := range cd.Meta.Fields {
			fw := fieldWire{
				Type:     f.Type,
				Unique:   f.Unique,
				Indexed:  f.Indexed,
				Nullable: f.Nullable,
				Rules:    f.Rules,
			}
			def, err := tr.Encode(f.Type, f.Default)
			if err != nil {
				return cw, fmt.Errorf("field %s default: %w", name, err)
			}
			onUpdate, err := tr.Encode(f.Type, f.OnUpdate)
			if err != nil {
				return cw, fmt.Errorf("field %s onUpdate: %w", name, err)
			}
			fw.Default = def.Interface()
			fw.OnUpdate = onUpdate.Interface()
			cw.Fields[name] = fw
		}
	}
	cd.Documents.Each(func(_ string, doc types.Document) bool {
		cw.Documents = append(cw.Documents, doc.Map())
		return true
	})
	return cw, nil
}

// fromWire builds a snapshot from its wire shape and rebuilds every index
func fromWire(wire *snapshotWire, decode valueDecoder, tr Transformers) (*Snapshot, error) {
	snap := NewSnapshot(wire.Metadata.CreatedAt)
	snap.Metadata = wire.Metadata

	for _, cw := range wire.Collections {
		if cw.Name == "" {
			return nil, fmt.Errorf("collection without a name")
		}
		fields := make(map[string]types.FieldDescriptor, len(cw.Fields))
		for name, fw := range cw.Fields {
			f := types.FieldDescriptor{
				Type:     fw.Type,
				Unique:   fw.Unique,
				Indexed:  fw.Indexed,
				Nullable: fw.Nullable,
				Rules:    fw.Rules,
			}
			var err error
			if f.Default, err = wireValue(fw.Default, fw.Type, decode, tr); err != nil {
				return nil, fmt.Errorf("collection %s field %s default: %w", cw.Name, name, err)
			}
			if f.OnUpdate, err = wireValue(fw.OnUpdate, fw.Type, decode, tr); err != nil {
				return nil, fmt.Errorf("collection %s field %s onUpdate: %w", cw.Name, name, err)
			}
			fields[name] = f
		}

		cd := NewCollectionData(cw.Name, fields)
		for i, raw := range cw.Documents {
			doc := make(types.Document, len(raw))
			for k, rv := range raw {
				v, err := decode(rv)
				if err != nil {
					return nil, fmt.Errorf("collection %s document %d field %s: %w", cw.Name, i, k, err)
				}
				doc[k] = v
			}
			id := doc.ID()
			if id == "" {
				return nil, fmt.Errorf("collection %s document %d has no string %s", cw.Name, i, types.IDField)
			}
			cd.Documents.Put(id, doc)
		}

		err := cd.Indexes.Rebuild(cd.Documents, func(doc types.Document) (types.Document, error) {
			return tr.DecodeDocument(doc, cd.Meta.Fields)
		})
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", cw.Name, err)
		}
		snap.Put(cd)
	}
	return snap, nil
}

func wireValue(raw interface{}, tag string, decode valueDecoder, tr Transformers) (types.Value, error) {
	if raw == nil {
		return types.Undefined(), nil
	}
	v, err := decode(raw)
	if err != nil {
		return v, err
	}
	return tr.Decode(tag, v)
}
