package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/noodm/formats"
)

// Backend names accepted by --backend
const (
	backendJSON   = "json"
	backendBSON   = "bson"
	backendSQLite = "sqlite"
	backendDynamo = "dynamodb"
)

// cliConfig holds the settings resolved from flags, NOODM_* variables and
// noodm.yaml
type cliConfig struct {
	DB           string `mapstructure:"db"`
	Backend      string `mapstructure:"backend"`
	Schema       string `mapstructure:"schema"`
	Format       string `mapstructure:"format"`
	LogLevel     string `mapstructure:"log-level"`
	LogConsole   bool   `mapstructure:"log-console"`
	StrictUnique bool   `mapstructure:"strict-unique"`
	DynamoTable  string `mapstructure:"dynamo-table"`
}

// backend returns the configured backend, inferring it from the database
// extension when unset
func (c cliConfig) backend() string {
	if c.Backend != "" {
		return strings.ToLower(c.Backend)
	}
	switch strings.ToLower(filepath.Ext(c.DB)) {
	case ".bson":
		return backendBSON
	case ".db", ".sqlite", ".sqlite3":
		return backendSQLite
	default:
		return backendJSON
	}
}

func (c cliConfig) validate() error {
	if c.DB == "" {
		return NewConfigError("open database", "no database given",
			"Pass --db or set NOODM_DB",
			CommonSuggestions.CheckConfig)
	}
	switch c.backend() {
	case backendJSON, backendBSON, backendSQLite:
	case backendDynamo:
		if c.DynamoTable == "" {
			return NewConfigError("open database", "the dynamodb backend needs a table",
				"Pass --dynamo-table or set NOODM_DYNAMO_TABLE")
		}
	default:
		return NewValidationError("open database", "backend", c.Backend,
			"Use one of: json, bson, sqlite, dynamodb")
	}
	if _, err := formats.Get(c.Format); err != nil {
		return NewValidationError("render output", "format", c.Format,
			fmt.Sprintf("Available formats: %s", strings.Join(formats.List(), ", ")))
	}
	return nil
}
