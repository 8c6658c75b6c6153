package noodm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/noodm/internal/validation"
	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
	"go.uber.org/zap"
)

// Database owns a snapshot of named collections and persists it through an
// adapter after every mutation.
type Database struct {
	adapter  storage.Adapter
	config   Config
	logger   *zap.Logger
	timeFunc func() time.Time

	tr          storage.Transformers
	constraints map[string][]types.Validator

	snap        atomic.Pointer[storage.Snapshot]
	lock        *storage.LockManager
	collections map[string]*Collection

	// changes counts mutations, saved the value covered by the last good save
	changes atomic.Uint64
	saveMu  sync.Mutex
	saved   uint64

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates an empty database backed by adapter. Use Load or Open to read
// the persisted snapshot.
func New(adapter storage.Adapter, opts ...Option) *Database {
	db := &Database{
		adapter:     adapter,
		config:      DefaultConfig(),
		logger:      zap.NewNop(),
		timeFunc:    time.Now,
		lock:        storage.NewLockManager(),
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(db)
	}

	db.tr = adapter.Transformers()
	db.constraints = adapter.Constraints()
	db.snap.Store(storage.NewSnapshot(db.timeFunc()))

	if db.config.AutosaveInterval > 0 {
		db.stop = make(chan struct{})
		db.done = make(chan struct{})
		go db.autosave(db.config.AutosaveInterval)
	}
	return db
}

// Open creates a database and loads the persisted snapshot
func Open(ctx context.Context, adapter storage.Adapter, opts ...Option) (*Database, error) {
	db := New(adapter, opts...)
	if err := db.Load(ctx); err != nil {
		db.shutdown()
		return nil, err
	}
	return db, nil
}

// Load replaces the in-memory state with the persisted snapshot. Existing
// collection handles are rebound to the loaded data and keep their declared
// schemas.
func (db *Database) Load(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	snap, err := db.adapter.Deserialize(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAdapter, err)
	}
	if snap == nil {
		snap = storage.NewSnapshot(db.timeFunc())
	}

	return db.lock.Execute(storage.WriteOperation, func() error {
		for name, c := range db.collections {
			cd, _ := snap.Ensure(name, func() *storage.CollectionData {
				return storage.NewCollectionData(name, nil)
			})
			if err := c.bind(cd); err != nil {
				return err
			}
		}
		db.snap.Store(snap)
		db.logger.Debug("snapshot loaded", zap.Strings("collections", snap.Names()))
		return nil
	})
}

// Save persists the current snapshot
func (db *Database) Save(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.save(ctx)
}

func (db *Database) save(ctx context.Context) error {
	changes := db.changes.Load()
	if err := db.adapter.Serialize(ctx, db.snap.Load()); err != nil {
		return fmt.Errorf("%w: %w", ErrAdapter, err)
	}
	db.saveMu.Lock()
	if changes > db.saved {
		db.saved = changes
	}
	db.saveMu.Unlock()
	return nil
}

func (db *Database) markDirty() {
	db.changes.Add(1)
}

// dirty reports whether a change has not been covered by a successful save
func (db *Database) dirty() bool {
	db.saveMu.Lock()
	defer db.saveMu.Unlock()
	return db.changes.Load() > db.saved
}

// autosave retries saving changes whose save failed or was never attempted
func (db *Database) autosave(interval time.Duration) {
	defer close(db.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stop:
			return
		case <-ticker.C:
			if !db.dirty() {
				continue
			}
			if err := db.save(context.Background()); err != nil {
				db.logger.Warn("autosave failed", zap.Error(err))
			}
		}
	}
}

func (db *Database) stopAutosave() {
	if db.stop != nil {
		close(db.stop)
		<-db.done
	}
}

// shutdown closes without saving
func (db *Database) shutdown() {
	db.closeOnce.Do(func() {
		db.stopAutosave()
		db.closed.Store(true)
	})
}

// Close stops autosave, saves pending changes and rejects further
// operations. Closing twice is a no-op.
func (db *Database) Close() error {
	var err error
	db.closeOnce.Do(func() {
		db.stopAutosave()
		if db.dirty() {
			err = db.save(context.Background())
		}
		db.closed.Store(true)
	})
	return err
}

// Collection returns the handle of the named collection, creating an empty
// collection when it does not exist. Creation is saved with the next mutation.
func (db *Database) Collection(name string) (*Collection, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	return storage.ExecuteWithResult(db.lock, storage.WriteOperation, func() (*Collection, error) {
		if c, ok := db.collections[name]; ok {
			return c, nil
		}
		cd, created := db.snap.Load().Ensure(name, func() *storage.CollectionData {
			return storage.NewCollectionData(name, nil)
		})
		c := newCollection(db, name, cd)
		if err := c.bind(cd); err != nil {
			return nil, err
		}
		db.collections[name] = c
		if created {
			db.markDirty()
			db.logger.Debug("collection created", zap.String("collection", name))
		}
		return c, nil
	})
}

// CollectionFor returns the handle of schema's collection and declares its
// fields. Declared fields replace earlier descriptors of the same name;
// indexes are rebuilt when the indexed fields change.
func (db *Database) CollectionFor(schema types.Schema) (*Collection, error) {
	if _, err := validation.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	c, err := db.Collection(schema.Name)
	if err != nil {
		return nil, err
	}
	if err := c.declare(schema); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	db.markDirty()
	return c, nil
}

// Collections returns the collection names in sorted order
func (db *Database) Collections() []string {
	return db.snap.Load().Names()
}

// RemoveCollection drops a collection and saves. Existing handles fail with
// ErrCollectionNotFound afterwards.
func (db *Database) RemoveCollection(ctx context.Context, name string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := db.lock.Execute(storage.WriteOperation, func() error {
		removed := db.snap.Load().Remove(name)
		c, ok := db.collections[name]
		if ok {
			c.dropped.Store(true)
			delete(db.collections, name)
		}
		if !removed && !ok {
			return &OpError{Op: OpDrop, Collection: name, Err: ErrCollectionNotFound}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.markDirty()
	db.logger.Debug("collection dropped", zap.String("collection", name))
	if err := db.save(ctx); err != nil {
		return &OpError{Op: OpDrop, Collection: name, Err: err}
	}
	return nil
}

// RenameCollection moves a collection to a new name and saves. The existing
// handle follows the rename.
func (db *Database) RenameCollection(ctx context.Context, from, to string) (*Collection, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if to == "" {
		return nil, &OpError{Op: OpRename, Collection: from, Err: errors.New("collection name cannot be empty")}
	}
	c, err := storage.ExecuteWithResult(db.lock, storage.WriteOperation, func() (*Collection, error) {
		snap := db.snap.Load()
		if _, exists := snap.Collection(from); !exists {
			return nil, &OpError{Op: OpRename, Collection: from, Err: ErrCollectionNotFound}
		}
		cd, ok := snap.Rename(from, to)
		if !ok {
			return nil, &OpError{Op: OpRename, Collection: from, Err: fmt.Errorf("collection %q already exists", to)}
		}
		c, ok := db.collections[from]
		if ok {
			delete(db.collections, from)
			c.setName(to)
		} else {
			c = newCollection(db, to, cd)
			if err := c.bind(cd); err != nil {
				return nil, err
			}
		}
		db.collections[to] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	db.markDirty()
	db.logger.Debug("collection renamed", zap.String("from", from), zap.String("to", to))
	if err := db.save(ctx); err != nil {
		return c, &OpError{Op: OpRename, Collection: to, Err: err}
	}
	return c, nil
}

// rebuildIndexes replaces the indexes of cd with ones built for fields. It
// fails without changes when stored documents share a unique value.
func (db *Database) rebuildIndexes(cd *storage.CollectionData, fields map[string]types.FieldDescriptor) error {
	indexes := storage.NewIndexSet(fields)
	err := indexes.Rebuild(cd.Documents, func(doc types.Document) (types.Document, error) {
		return db.tr.DecodeDocument(doc, fields)
	})
	if err != nil {
		return err
	}
	for _, field := range indexes.Fields() {
		if !indexes.Unique(field) {
			continue
		}
		for key, ids := range indexes.Export()[field] {
			if len(ids) > 1 {
				return fmt.Errorf("%w: field %s value %s is held by %v", ErrUniquenessViolation, field, key, ids)
			}
		}
	}
	cd.Indexes = indexes
	return nil
}

// bind attaches the handle to cd, reapplying the declared schema
func (c *Collection) bind(cd *storage.CollectionData) error {
	c.data.Store(cd)
	c.metaMu.RLock()
	declared := c.declared
	c.metaMu.RUnlock()
	if declared != nil {
		return c.apply(cd, *declared)
	}
	return cd.Lock().Execute(storage.WriteOperation, func() error {
		rules, err := compileRules(cd.Meta.Fields)
		if err != nil {
			return fmt.Errorf("collection %s: %w", cd.Meta.Name, err)
		}
		c.rules = rules
		return nil
	})
}

// declare merges schema into the collection and remembers it across loads
func (c *Collection) declare(schema types.Schema) error {
	if err := c.apply(c.data.Load(), schema); err != nil {
		return err
	}
	c.metaMu.Lock()
	c.declared = &schema
	c.metaMu.Unlock()
	return nil
}

func (c *Collection) apply(cd *storage.CollectionData, schema types.Schema) error {
	return cd.Lock().Execute(storage.WriteOperation, func() error {
		merged := copyFields(cd.Meta.Fields)
		for name, f := range schema.Fields {
			merged[name] = f.Normalized()
		}
		rules, err := compileRules(merged)
		if err != nil {
			return err
		}
		if indexLayout(merged) != indexLayout(cd.Meta.Fields) {
			if err := c.db.rebuildIndexes(cd, merged); err != nil {
				return err
			}
		}
		cd.Meta.Fields = merged
		c.rules = rules
		return nil
	})
}

func compileRules(fields map[string]types.FieldDescriptor) (map[string][]types.Validator, error) {
	compiled := make(map[string][]types.Validator)
	for name, f := range fields {
		rules, err := validation.Compile(f.Rules)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if len(rules) > 0 {
			compiled[name] = rules
		}
	}
	return compiled, nil
}

// indexLayout summarizes which fields carry which kind of index
func indexLayout(fields map[string]types.FieldDescriptor) string {
	var layout string
	for _, name := range sortedFields(fields) {
		f := fields[name]
		switch {
		case name == types.IDField:
		case f.Unique:
			layout += name + ":unique;"
		case f.Indexed:
			layout += name + ":indexed;"
		}
	}
	return layout
}
