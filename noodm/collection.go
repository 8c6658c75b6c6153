package noodm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arthur-debert/noodm/internal/matching"
	"github.com/arthur-debert/noodm/internal/validation"
	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
	"go.uber.org/zap"
)

// Collection is a handle on one named set of documents. It is safe for
// concurrent use. Every operation runs its pre hooks, mutates the table and
// its indexes under the collection lock, saves the database and then runs its
// post hooks.
type Collection struct {
	db *Database

	data    atomic.Pointer[storage.CollectionData]
	dropped atomic.Bool

	metaMu   sync.RWMutex
	name     string
	logger   *zap.Logger
	declared *types.Schema

	// rules holds the compiled named validators per field; guarded by the
	// collection lock
	rules map[string][]types.Validator

	hooksMu sync.RWMutex
	hooks   hookSet
}

func newCollection(db *Database, name string, cd *storage.CollectionData) *Collection {
	c := &Collection{db: db}
	c.setName(name)
	c.data.Store(cd)
	return c
}

// Name returns the collection name
func (c *Collection) Name() string {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.name
}

func (c *Collection) setName(name string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.name = name
	c.logger = c.db.logger.Named("collection").With(zap.String("collection", name))
}

func (c *Collection) log() *zap.Logger {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.logger
}

// Fields returns a copy of the field descriptors. A dropped collection or a
// closed database has no fields.
func (c *Collection) Fields() map[string]types.FieldDescriptor {
	out := make(map[string]types.FieldDescriptor)
	cd, err := c.state()
	if err != nil {
		return out
	}
	_ = cd.Lock().Execute(storage.ReadOperation, func() error {
		for k, f := range cd.Meta.Fields {
			out[k] = f
		}
		return nil
	})
	return out
}

// IndexSnapshot returns key -> ids for an indexed field, or nil when the
// field has no index or the collection is unusable
func (c *Collection) IndexSnapshot(field string) map[string][]string {
	cd, err := c.state()
	if err != nil {
		return nil
	}
	var out map[string][]string
	_ = cd.Lock().Execute(storage.ReadOperation, func() error {
		out = cd.Indexes.Export()[field]
		return nil
	})
	return out
}

// Len returns the number of stored documents, 0 once the collection is
// dropped or the database closed
func (c *Collection) Len() int {
	cd, err := c.state()
	if err != nil {
		return 0
	}
	n := 0
	_ = cd.Lock().Execute(storage.ReadOperation, func() error {
		n = cd.Documents.Len()
		return nil
	})
	return n
}

// state returns the live collection data or the reason it is unusable
func (c *Collection) state() (*storage.CollectionData, error) {
	if c.db.closed.Load() {
		return nil, ErrClosed
	}
	if c.dropped.Load() {
		return nil, ErrCollectionNotFound
	}
	return c.data.Load(), nil
}

// read runs fn under the read lock unless the request already holds the write lock
func (c *Collection) read(cd *storage.CollectionData, req *Request, fn func() error) error {
	if req.locked {
		return fn()
	}
	return cd.Lock().Execute(storage.ReadOperation, fn)
}

// write runs fn under the write lock unless the request already holds it
func (c *Collection) write(cd *storage.CollectionData, req *Request, fn func() error) error {
	if req.locked {
		return fn()
	}
	return cd.Lock().Execute(storage.WriteOperation, fn)
}

func (c *Collection) opError(op, field string, payload []types.Document, err error) *OpError {
	return &OpError{Op: op, Collection: c.Name(), Field: field, Payload: payload, Err: err}
}

// prevented turns a prevention reason into the operation error
func (c *Collection) prevented(op string, reason error, payload []types.Document) error {
	var opErr *OpError
	if errors.As(reason, &opErr) {
		return opErr
	}
	if reason == nil {
		reason = errors.New("prevented by hook")
	}
	return c.opError(op, "", payload, reason)
}

// persist saves the database after a mutation
func (c *Collection) persist(ctx context.Context, op string, payload []types.Document) error {
	c.db.markDirty()
	if err := c.db.save(ctx); err != nil {
		c.log().Warn("save failed after mutation", zap.String("op", op), zap.Error(err))
		return c.opError(op, "", payload, err)
	}
	return nil
}

// Insert stores one document and returns its id
func (c *Collection) Insert(ctx context.Context, doc types.Document) (string, error) {
	ids, err := c.InsertMany(ctx, []types.Document{doc})
	if len(ids) == 0 {
		return "", err
	}
	return ids[0], err
}

// InsertMany stores docs as one batch: either every document is stored or
// none is. Documents without _id get one from the adapter.
func (c *Collection) InsertMany(ctx context.Context, docs []types.Document) ([]string, error) {
	cd, err := c.state()
	if err != nil {
		return nil, c.opError(OpInsert, "", docs, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &InsertRequest{Docs: make([]types.Document, 0, len(docs))}
	for _, doc := range docs {
		clone := doc.Clone()
		if clone == nil {
			clone = types.Document{}
		}
		if err := c.assignID(clone); err != nil {
			return nil, c.opError(OpInsert, types.IDField, []types.Document{clone}, err)
		}
		req.Docs = append(req.Docs, clone)
	}
	hooks := c.snapshotHooks()

	run := func() error {
		if err := c.preInsert(ctx, cd, req, hooks); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.write(cd, &req.Request, func() error {
			return c.executeInsert(cd, req.Docs)
		})
	}
	if c.db.config.Uniqueness == UniquenessStrict {
		req.locked = true
		err = cd.Lock().Execute(storage.WriteOperation, run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Docs))
	for i, doc := range req.Docs {
		ids[i] = doc.ID()
	}
	c.log().Debug("inserted", zap.Strings("ids", ids))

	if err := c.persist(ctx, OpInsert, req.Docs); err != nil {
		return ids, err
	}
	ev := &InsertEvent{Collection: c.Name(), Docs: cloneAll(req.Docs)}
	if err := runHooks(ctx, hooks.postInsert, ev); err != nil {
		return ids, err
	}
	return ids, nil
}

func (c *Collection) assignID(doc types.Document) error {
	v := doc[types.IDField]
	if v.IsNil() {
		id, err := c.db.adapter.GenerateID(doc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAdapter, err)
		}
		doc[types.IDField] = types.String(id)
		return nil
	}
	if id, ok := v.Str(); !ok || id == "" {
		return fmt.Errorf("%w: %s must be a non-empty string, got %s", ErrConstraintViolation, types.IDField, v)
	}
	return nil
}

// preInsert runs the built-in checks then the registered hooks. Hooks may
// edit the batch, so the checks run again on what the hooks leave behind.
func (c *Collection) preInsert(ctx context.Context, cd *storage.CollectionData, req *InsertRequest, hooks hookSet) error {
	c.checkInsert(cd, req)

	if err := runHooks(ctx, hooks.preInsert, req); err != nil {
		return err
	}
	if !req.Prevented() {
		for i, doc := range req.Docs {
			if doc == nil {
				doc = types.Document{}
				req.Docs[i] = doc
			}
			if err := c.assignID(doc); err != nil {
				req.Prevent(c.opError(OpInsert, types.IDField, []types.Document{doc}, err))
			}
		}
		c.checkInsert(cd, req)
	}
	if req.Prevented() {
		return c.prevented(OpInsert, req.Reason(), req.Docs)
	}
	return nil
}

// checkInsert fills defaults and prevents req on a duplicate id, an invalid
// document or a uniqueness conflict
func (c *Collection) checkInsert(cd *storage.CollectionData, req *InsertRequest) {
	var fields map[string]types.FieldDescriptor
	var rules map[string][]types.Validator
	var duplicate, conflict *OpError

	_ = c.read(cd, &req.Request, func() error {
		fields, rules = copyFields(cd.Meta.Fields), c.rules
		duplicate = c.duplicateIDs(cd, req.Docs)
		return nil
	})
	if duplicate != nil {
		req.Prevent(duplicate)
	}

	for _, doc := range req.Docs {
		if field, err := applyDefaults(doc, fields); err != nil {
			req.Prevent(c.opError(OpInsert, field, []types.Document{doc}, fmt.Errorf("%w: %w", ErrConstraintViolation, err)))
		}
	}

	for _, doc := range req.Docs {
		if violation := validation.Document(doc, fields, rules, c.db.constraints); violation != nil {
			req.Prevent(c.violation(OpInsert, doc, violation))
		}
	}

	_ = c.read(cd, &req.Request, func() error {
		conflict = c.uniqueness(OpInsert, cd, req.Docs)
		return nil
	})
	if conflict != nil {
		req.Prevent(conflict)
	}
}

// duplicateIDs reports an id that is already stored or repeated in the batch
func (c *Collection) duplicateIDs(cd *storage.CollectionData, docs []types.Document) *OpError {
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		id := doc.ID()
		if seen[id] || cd.Documents.Has(id) {
			return c.opError(OpInsert, types.IDField, []types.Document{doc}, fmt.Errorf("%w: %s", ErrDuplicateID, id))
		}
		seen[id] = true
	}
	return nil
}

// uniqueness checks docs against the unique indexes and against each other.
// The stored entries of the batch's own ids are treated as released, so the
// check judges the state after the whole batch is applied.
func (c *Collection) uniqueness(op string, cd *storage.CollectionData, docs []types.Document) *OpError {
	released := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		released[doc.ID()] = struct{}{}
	}
	batch := make(map[string]map[string]string)
	for _, doc := range docs {
		id := doc.ID()
		if conflict := cd.Indexes.Conflict(doc, released); conflict != nil {
			return c.opError(op, conflict.Field, []types.Document{doc}, fmt.Errorf("%w: %w", ErrUniquenessViolation, conflict))
		}
		for _, field := range cd.Indexes.Fields() {
			if !cd.Indexes.Unique(field) {
				continue
			}
			key, ok := doc[field].IndexKey()
			if !ok {
				continue
			}
			if batch[field] == nil {
				batch[field] = make(map[string]string)
			}
			if holder, taken := batch[field][key]; taken && holder != id {
				err := &storage.ConflictError{Field: field, Value: doc[field], Holder: holder}
				return c.opError(op, field, []types.Document{doc}, fmt.Errorf("%w: %w", ErrUniquenessViolation, err))
			}
			batch[field][key] = id
		}
	}
	return nil
}

func (c *Collection) violation(op string, doc types.Document, v *validation.Violation) *OpError {
	return c.opError(op, v.Field, []types.Document{doc}, fmt.Errorf("%w: %w", ErrConstraintViolation, v))
}

// executeInsert stores docs and indexes them. The caller holds the write lock.
func (c *Collection) executeInsert(cd *storage.CollectionData, docs []types.Document) error {
	if duplicate := c.duplicateIDs(cd, docs); duplicate != nil {
		return duplicate
	}

	durable := make([]types.Document, len(docs))
	for i, doc := range docs {
		enc, err := c.db.tr.EncodeDocument(doc, cd.Meta.Fields)
		if err != nil {
			return c.opError(OpInsert, "", []types.Document{doc}, fmt.Errorf("%w: %w", ErrConstraintViolation, err))
		}
		durable[i] = enc
	}

	strict := c.db.config.Uniqueness == UniquenessStrict
	for i, doc := range docs {
		if err := cd.Indexes.Add(doc.ID(), doc, strict); err != nil {
			for _, added := range docs[:i] {
				cd.Indexes.Remove(added.ID(), added)
			}
			return c.conflict(OpInsert, doc, err)
		}
	}
	if !strict {
		c.reportRaces(cd, docs)
	}

	for i, doc := range docs {
		cd.Documents.Put(doc.ID(), durable[i])
	}
	return nil
}

// reportRaces logs unique buckets that ended up shared, which only happens
// when best-effort pre checks interleave
func (c *Collection) reportRaces(cd *storage.CollectionData, docs []types.Document) {
	for _, doc := range docs {
		for _, field := range cd.Indexes.Fields() {
			if !cd.Indexes.Unique(field) {
				continue
			}
			key, ok := doc[field].IndexKey()
			if !ok {
				continue
			}
			if ids, _ := cd.Indexes.Bucket(field, key); len(ids) > 1 {
				c.log().Warn("unique value shared after concurrent insert",
					zap.String("field", field),
					zap.String("value", doc[field].String()),
					zap.Int("holders", len(ids)))
			}
		}
	}
}

func (c *Collection) conflict(op string, doc types.Document, err error) error {
	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		return c.opError(op, conflict.Field, []types.Document{doc}, fmt.Errorf("%w: %w", ErrUniquenessViolation, conflict))
	}
	return c.opError(op, "", []types.Document{doc}, err)
}

// Find returns the documents matching cond in insertion order. A nil or empty
// condition matches every document.
func (c *Collection) Find(ctx context.Context, cond types.Cond) ([]types.Document, error) {
	cd, err := c.state()
	if err != nil {
		return nil, c.opError(OpFind, "", nil, err)
	}

	hooks := c.snapshotHooks()
	req := &FindRequest{Cond: cond.Clone()}
	if err := runHooks(ctx, hooks.preFind, req); err != nil {
		return nil, err
	}
	if req.Prevented() {
		return nil, c.prevented(OpFind, req.Reason(), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []types.Document
	err = cd.Lock().Execute(storage.ReadOperation, func() error {
		var matchErr error
		docs, matchErr = c.match(cd, req.Cond)
		return matchErr
	})
	if err != nil {
		return nil, c.opError(OpFind, "", nil, err)
	}

	ev := &FindEvent{Collection: c.Name(), Cond: req.Cond, Docs: docs}
	if err := runHooks(ctx, hooks.postFind, ev); err != nil {
		return nil, err
	}
	return ev.Docs, nil
}

// Get returns the first document matching cond
func (c *Collection) Get(ctx context.Context, cond types.Cond) (types.Document, bool, error) {
	docs, err := c.Find(ctx, cond)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

// Count returns the number of documents matching cond. Hooks do not run.
func (c *Collection) Count(ctx context.Context, cond types.Cond) (int, error) {
	cd, err := c.state()
	if err != nil {
		return 0, c.opError(OpFind, "", nil, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err = cd.Lock().Execute(storage.ReadOperation, func() error {
		docs, err := c.match(cd, cond)
		n = len(docs)
		return err
	})
	return n, err
}

// match resolves cond against the table. The caller holds a lock.
func (c *Collection) match(cd *storage.CollectionData, cond types.Cond) ([]types.Document, error) {
	plan := matching.NewPlan(cond, cd.Indexes)

	var ids []string
	if plan.Narrowed {
		ids = cd.Documents.Ordered(plan.Candidates)
	} else {
		ids = cd.Documents.IDs()
	}

	var out []types.Document
	for _, id := range ids {
		doc, _ := cd.Documents.Get(id)
		rich, err := c.db.tr.DecodeDocument(doc, cd.Meta.Fields)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		rich[types.IDField] = types.String(id)
		if matching.Matches(rich, plan.Residual) {
			out = append(out, rich)
		}
	}
	return out, nil
}

// updatePair is one planned document update
type updatePair struct {
	id     string
	before types.Document
	after  types.Document
}

// Update applies setter to every document matching cond and returns the
// number of updated documents. A failing document aborts the whole update.
func (c *Collection) Update(ctx context.Context, cond types.Cond, setter Setter) (int, error) {
	cd, err := c.state()
	if err != nil {
		return 0, c.opError(OpUpdate, "", nil, err)
	}
	if setter == nil {
		return 0, c.opError(OpUpdate, "", nil, errors.New("nil setter"))
	}

	hooks := c.snapshotHooks()
	req := &UpdateRequest{Cond: cond.Clone(), Setter: setter}
	var pairs []updatePair

	run := func() error {
		var violation *OpError
		err := c.read(cd, &req.Request, func() error {
			var planErr error
			pairs, violation, planErr = c.planUpdate(cd, req.Cond, setter)
			return planErr
		})
		if err != nil {
			return c.opError(OpUpdate, "", nil, err)
		}
		if violation != nil {
			req.Prevent(violation)
		}
		for _, p := range pairs {
			req.Matched = append(req.Matched, p.before.Clone())
			req.Updated = append(req.Updated, p.after.Clone())
		}

		if err := runHooks(ctx, hooks.preUpdate, req); err != nil {
			return err
		}
		if req.Prevented() {
			return c.prevented(OpUpdate, req.Reason(), req.Updated)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		return c.write(cd, &req.Request, func() error {
			if !req.locked {
				// The state may have moved since the pre phase
				var planErr error
				pairs, violation, planErr = c.planUpdate(cd, req.Cond, setter)
				if planErr != nil {
					return c.opError(OpUpdate, "", nil, planErr)
				}
				if violation != nil {
					return violation
				}
			}
			return c.executeUpdate(cd, pairs)
		})
	}
	if c.db.config.Uniqueness == UniquenessStrict {
		req.locked = true
		err = cd.Lock().Execute(storage.WriteOperation, run)
	} else {
		err = run()
	}
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	ev := &UpdateEvent{Collection: c.Name(), Cond: req.Cond}
	for _, p := range pairs {
		ev.Before = append(ev.Before, p.before)
		ev.After = append(ev.After, p.after.Clone())
	}
	c.log().Debug("updated", zap.Int("count", len(pairs)))

	if err := c.persist(ctx, OpUpdate, ev.After); err != nil {
		return len(pairs), err
	}
	if err := runHooks(ctx, hooks.postUpdate, ev); err != nil {
		return len(pairs), err
	}
	return len(pairs), nil
}

// planUpdate computes the new version of every matched document and checks
// it. violation is set when a document fails validation or uniqueness.
func (c *Collection) planUpdate(cd *storage.CollectionData, cond types.Cond, setter Setter) ([]updatePair, *OpError, error) {
	matched, err := c.match(cd, cond)
	if err != nil {
		return nil, nil, err
	}

	fields := cd.Meta.Fields
	pairs := make([]updatePair, 0, len(matched))
	afters := make([]types.Document, 0, len(matched))
	for _, before := range matched {
		id := before.ID()
		after, err := setter.Apply(before.Clone())
		if err != nil {
			return nil, nil, fmt.Errorf("setter failed on %s: %w", id, err)
		}
		if after == nil {
			after = types.Document{}
		}
		if after[types.IDField].IsUndefined() {
			after[types.IDField] = types.String(id)
		}
		if !after[types.IDField].Equal(before[types.IDField]) {
			return nil, c.opError(OpUpdate, types.IDField, []types.Document{after},
				fmt.Errorf("%w: %s is immutable", ErrConstraintViolation, types.IDField)), nil
		}

		for _, name := range sortedFields(fields) {
			f := fields[name]
			if !f.OnUpdate.IsUndefined() && after[name].IsUndefined() {
				after[name] = f.OnUpdate.Clone()
			}
		}
		if field, err := coerceDeclared(after, fields); err != nil {
			return nil, c.opError(OpUpdate, field, []types.Document{after}, fmt.Errorf("%w: %w", ErrConstraintViolation, err)), nil
		}
		if v := validation.Document(after, fields, c.rules, c.db.constraints); v != nil {
			return nil, c.violation(OpUpdate, after, v), nil
		}

		pairs = append(pairs, updatePair{id: id, before: before, after: after})
		afters = append(afters, after)
	}

	if conflict := c.uniqueness(OpUpdate, cd, afters); conflict != nil {
		return nil, conflict, nil
	}
	return pairs, nil, nil
}

// executeUpdate swaps index entries and stores the new documents. On a
// uniqueness failure the old entries are restored. The caller holds the write lock.
func (c *Collection) executeUpdate(cd *storage.CollectionData, pairs []updatePair) error {
	durable := make([]types.Document, len(pairs))
	for i, p := range pairs {
		enc, err := c.db.tr.EncodeDocument(p.after, cd.Meta.Fields)
		if err != nil {
			return c.opError(OpUpdate, "", []types.Document{p.after}, fmt.Errorf("%w: %w", ErrConstraintViolation, err))
		}
		durable[i] = enc
	}

	for _, p := range pairs {
		cd.Indexes.Remove(p.id, p.before)
	}
	for i, p := range pairs {
		if err := cd.Indexes.Add(p.id, p.after, true); err != nil {
			for _, added := range pairs[:i] {
				cd.Indexes.Remove(added.id, added.after)
			}
			for _, restore := range pairs {
				_ = cd.Indexes.Add(restore.id, restore.before, false)
			}
			return c.conflict(OpUpdate, p.after, err)
		}
	}

	for i, p := range pairs {
		cd.Documents.Put(p.id, durable[i])
	}
	return nil
}

// Delete removes every document matching cond and returns the count
func (c *Collection) Delete(ctx context.Context, cond types.Cond) (int, error) {
	cd, err := c.state()
	if err != nil {
		return 0, c.opError(OpDelete, "", nil, err)
	}

	hooks := c.snapshotHooks()
	req := &DeleteRequest{Cond: cond.Clone()}
	if err := runHooks(ctx, hooks.preDelete, req); err != nil {
		return 0, err
	}
	if req.Prevented() {
		return 0, c.prevented(OpDelete, req.Reason(), nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var deleted []types.Document
	err = cd.Lock().Execute(storage.WriteOperation, func() error {
		matched, err := c.match(cd, req.Cond)
		if err != nil {
			return err
		}
		for _, doc := range matched {
			cd.Indexes.Remove(doc.ID(), doc)
			cd.Documents.Delete(doc.ID())
		}
		deleted = matched
		return nil
	})
	if err != nil {
		return 0, c.opError(OpDelete, "", nil, err)
	}
	if len(deleted) == 0 {
		return 0, nil
	}
	c.log().Debug("deleted", zap.Int("count", len(deleted)))

	if err := c.persist(ctx, OpDelete, deleted); err != nil {
		return len(deleted), err
	}
	ev := &DeleteEvent{Collection: c.Name(), Cond: req.Cond, Docs: deleted}
	if err := runHooks(ctx, hooks.postDelete, ev); err != nil {
		return len(deleted), err
	}
	return len(deleted), nil
}

// applyDefaults fills absent declared fields from their defaults and coerces
// declared types. It returns the failing field on error.
func applyDefaults(doc types.Document, fields map[string]types.FieldDescriptor) (string, error) {
	for _, name := range sortedFields(fields) {
		f := fields[name]
		if doc[name].IsUndefined() && !f.Default.IsUndefined() {
			doc[name] = f.Default.Clone()
		}
	}
	return coerceDeclared(doc, fields)
}

func coerceDeclared(doc types.Document, fields map[string]types.FieldDescriptor) (string, error) {
	for _, name := range sortedFields(fields) {
		f := fields[name]
		v := doc[name]
		if f.Type == "" || v.IsNil() {
			continue
		}
		coerced, err := types.Coerce(v, f.Type)
		if err != nil {
			return name, err
		}
		doc[name] = coerced
	}
	return "", nil
}

func sortedFields(fields map[string]types.FieldDescriptor) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyFields(fields map[string]types.FieldDescriptor) map[string]types.FieldDescriptor {
	out := make(map[string]types.FieldDescriptor, len(fields))
	for k, f := range fields {
		out[k] = f
	}
	return out
}

func cloneAll(docs []types.Document) []types.Document {
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}
