package formats

import (
	"fmt"
	"io"

	"github.com/arthur-debert/noodm/types"
	"gopkg.in/yaml.v3"
)

// YAML renders documents as a sequence of mappings
var YAML = &Format{
	Name:      "yaml",
	Extension: ".yaml",
	Render: func(w io.Writer, docs []types.Document) error {
		if docs == nil {
			docs = []types.Document{}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	},
	Parse: func(r io.Reader) ([]types.Document, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("invalid YAML documents: %w", err)
		}
		if len(node.Content) == 0 {
			return nil, fmt.Errorf("empty input")
		}

		var raws []map[string]interface{}
		root := node.Content[0]
		if root.Kind == yaml.SequenceNode {
			err = root.Decode(&raws)
		} else {
			var raw map[string]interface{}
			err = root.Decode(&raw)
			raws = append(raws, raw)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid YAML documents: %w", err)
		}
		return toDocuments(raws)
	},
}

func init() {
	mustRegister(YAML)
}
