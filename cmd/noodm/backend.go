package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/noodm/storage/dynamo"
	"github.com/arthur-debert/noodm/noodm/storage/sqlite"
	"github.com/arthur-debert/noodm/types"
	"go.uber.org/zap"
)

// sqliteDatabase names the snapshot row written by the sqlite backend
const sqliteDatabase = "main"

// openAdapter builds the storage adapter selected by the configuration.
// The returned release func frees backend resources.
func (c *cli) openAdapter(ctx context.Context) (storage.Adapter, func() error, error) {
	none := func() error { return nil }
	logger := c.logger.Named("storage")

	switch c.cfg.backend() {
	case backendBSON:
		return storage.NewBSONAdapter(c.cfg.DB, storage.WithLogger(logger)), none, nil
	case backendSQLite:
		a, err := sqlite.Open(c.cfg.DB, sqliteDatabase, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case backendDynamo:
		a, err := dynamo.NewFromEnv(ctx, c.cfg.DynamoTable, c.cfg.DB, dynamo.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return a, none, nil
	default:
		return storage.NewJSONAdapter(c.cfg.DB, storage.WithLogger(logger)), none, nil
	}
}

// loadSchemas reads the --schema file
func (c *cli) loadSchemas() ([]types.Schema, error) {
	if c.cfg.Schema == "" {
		return nil, nil
	}
	f, err := os.Open(c.cfg.Schema)
	if err != nil {
		return nil, NewConfigError("load schema", err.Error(), "Check the path passed with --schema")
	}
	defer func() { _ = f.Close() }()

	schemas, err := types.LoadSchemas(f)
	if err != nil {
		return nil, NewStoreError("load schema", fmt.Errorf("%w: %w", noodm.ErrInvalidSchema, err))
	}
	return schemas, nil
}

// withDatabase opens the database, runs fn and closes it. Mutating commands
// declare the schema file first so its rules apply; read-only commands leave
// the stored field descriptors untouched so nothing is rewritten on close.
func (c *cli) withDatabase(ctx context.Context, operation string, mutating bool, fn func(db *noodm.Database) error) (err error) {
	adapter, release, err := c.openAdapter(ctx)
	if err != nil {
		return NewStoreError(operation, err, CommonSuggestions.CheckDB)
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = NewStoreError(operation, rerr)
		}
	}()

	mode := noodm.UniquenessBestEffort
	if c.cfg.StrictUnique {
		mode = noodm.UniquenessStrict
	}
	db, err := noodm.Open(ctx, adapter,
		noodm.WithLogger(c.logger),
		noodm.WithUniqueness(mode))
	if err != nil {
		return NewStoreError(operation, err, CommonSuggestions.CheckDB)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = NewStoreError(operation, cerr, CommonSuggestions.CheckPerms)
		}
	}()

	if mutating {
		schemas, err := c.loadSchemas()
		if err != nil {
			return err
		}
		for _, schema := range schemas {
			if _, err := db.CollectionFor(schema); err != nil {
				return NewStoreError(operation, err)
			}
		}
	}

	if err := fn(db); err != nil {
		c.logger.Debug("command failed", zap.String("operation", operation), zap.Error(err))
		return WrapError(operation, err)
	}
	return nil
}

// existing returns the handle of a stored collection without creating it
func existing(db *noodm.Database, operation, name string) (*noodm.Collection, error) {
	if !slices.Contains(db.Collections(), name) {
		return nil, NewNotFoundError(operation, "collection", name, CommonSuggestions.ListCollections)
	}
	col, err := db.Collection(name)
	if err != nil {
		return nil, err
	}
	return col, nil
}
