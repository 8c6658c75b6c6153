// Package formats renders and parses documents for the command line.
package formats

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/arthur-debert/noodm/types"
)

// Format defines how a list of documents is written and read
type Format struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extension is the file extension including the dot (e.g., ".json", ".md")
	Extension string

	// Render writes docs to w
	Render func(w io.Writer, docs []types.Document) error

	// Parse reads documents from r. Nil for output-only formats.
	Parse func(r io.Reader) ([]types.Document, error)
}

// registry holds all available formats
var registry = make(map[string]*Format)

// Register adds a new format to the registry
func Register(format *Format) error {
	// Validate format name (alphanumeric, dashes, underscores, lowercase)
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}

	// Normalize extension
	if !strings.HasPrefix(format.Extension, ".") {
		format.Extension = "." + format.Extension
	}

	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}

	registry[format.Name] = format
	return nil
}

// Get returns a format by name
func Get(name string) (*Format, error) {
	format, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return format, nil
}

// ByExtension returns the parseable format registered for ext
func ByExtension(ext string) (*Format, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, name := range List() {
		f := registry[name]
		if f.Extension == ext && f.Parse != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no format reads %q files", ext)
}

// List returns all registered format names in sorted order
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func mustRegister(format *Format) {
	if err := Register(format); err != nil {
		panic(fmt.Sprintf("failed to register %s format: %v", format.Name, err))
	}
}
