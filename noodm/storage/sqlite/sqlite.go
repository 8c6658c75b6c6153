// Package sqlite stores noodm snapshots in a SQLite database, one row per
// database name. The row body is the JSON snapshot encoding.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultTable is the table snapshots are stored in
const DefaultTable = "noodm_snapshots"

// Option is a function that modifies Adapter configuration
type Option func(*Adapter)

// WithTable overrides the snapshot table name
func WithTable(table string) Option {
	return func(a *Adapter) {
		a.table = table
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(a *Adapter) {
		a.timeFunc = fn
	}
}

// WithIDGenerator replaces the default slug id generator
func WithIDGenerator(gen storage.IDGenerator) Option {
	return func(a *Adapter) {
		a.idGen = gen
	}
}

// WithLogger sets the logger used for write diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter implements storage.Adapter over a SQLite table
type Adapter struct {
	db       *sql.DB
	ownsDB   bool
	name     string
	table    string
	timeFunc func() time.Time
	idGen    storage.IDGenerator
	logger   *zap.Logger
	seq      storage.Sequencer
	sql      *sqlBuilder
}

// Open opens (or creates) the SQLite file at path and stores the snapshot of
// the database called name in it
func Open(path, name string, opts ...Option) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a, err := New(db, name, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.ownsDB = true
	return a, nil
}

// New creates an adapter over an existing connection pool
func New(db *sql.DB, name string, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		db:       db,
		name:     name,
		table:    DefaultTable,
		timeFunc: time.Now,
		idGen:    storage.SlugID,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sql = newSQLBuilder(a.table)

	if _, err := db.Exec(a.sql.createTable()); err != nil {
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return a, nil
}

// Close releases the connection pool when the adapter opened it
func (a *Adapter) Close() error {
	if !a.ownsDB {
		return nil
	}
	return a.db.Close()
}

// Serialize implements storage.Adapter.Serialize
func (a *Adapter) Serialize(ctx context.Context, snap *storage.Snapshot) error {
	ticket := a.seq.Reserve()
	now := a.timeFunc()

	body, err := storage.EncodeJSON(snap, now)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	skipped, err := a.seq.Write(ticket, func() error {
		query, args, err := a.sql.upsert(a.name, ticket, body, now.Unix())
		if err != nil {
			return err
		}
		if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.logger.Debug("sqlite snapshot stored",
		zap.String("name", a.name),
		zap.Uint64("ticket", ticket),
		zap.Bool("skipped", skipped))
	return nil
}

// Deserialize implements storage.Adapter.Deserialize
func (a *Adapter) Deserialize(ctx context.Context) (*storage.Snapshot, error) {
	query, args, err := a.sql.selectBody(a.name)
	if err != nil {
		return nil, err
	}

	var body string
	err = a.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if body == "" {
		return nil, nil
	}
	return storage.DecodeJSON([]byte(body))
}

// Drop removes the stored snapshot
func (a *Adapter) Drop(ctx context.Context) error {
	query, args, err := a.sql.deleteRow(a.name)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, query, args...)
	return err
}

// Names lists the databases stored in the table
func (a *Adapter) Names(ctx context.Context) ([]string, error) {
	query, args, err := a.sql.selectNames()
	if err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GenerateID implements storage.Adapter.GenerateID
func (a *Adapter) GenerateID(doc types.Document) (string, error) {
	return a.idGen(doc)
}

// Transformers implements storage.Adapter.Transformers. The body is JSON so the
// JSON transformers apply.
func (a *Adapter) Transformers() storage.Transformers {
	return storage.JSONTransformers()
}

// Constraints implements storage.Adapter.Constraints
func (a *Adapter) Constraints() map[string][]types.Validator {
	return storage.JSONConstraints()
}
