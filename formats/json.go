package formats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/arthur-debert/noodm/types"
)

// JSON renders documents as an indented array. Parse accepts a single object
// or an array of objects.
var JSON = &Format{
	Name:      "json",
	Extension: ".json",
	Render: func(w io.Writer, docs []types.Document) error {
		if docs == nil {
			docs = []types.Document{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	},
	Parse: func(r io.Reader) ([]types.Document, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil, fmt.Errorf("empty input")
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var raws []map[string]interface{}
		if data[0] == '[' {
			if err := dec.Decode(&raws); err != nil {
				return nil, fmt.Errorf("invalid JSON documents: %w", err)
			}
		} else {
			var raw map[string]interface{}
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("invalid JSON document: %w", err)
			}
			raws = append(raws, raw)
		}
		return toDocuments(raws)
	},
}

func init() {
	mustRegister(JSON)
}

func toDocuments(raws []map[string]interface{}) ([]types.Document, error) {
	docs := make([]types.Document, 0, len(raws))
	for i, raw := range raws {
		doc, err := types.NewDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
