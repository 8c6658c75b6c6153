package noodm

import (
	"context"

	"github.com/arthur-debert/noodm/types"
)

// Request is embedded in every pre-operation request. A hook calls Prevent to
// stop the operation; later hooks still run and the first reason is kept.
type Request struct {
	prevented bool
	reason    error

	// locked is true when the collection write lock is already held
	locked bool
}

// Prevent stops the operation after the pre phase
func (r *Request) Prevent(reason error) {
	if r.prevented {
		return
	}
	r.prevented = true
	r.reason = reason
}

// Prevented reports whether a hook prevented the operation
func (r *Request) Prevented() bool {
	return r.prevented
}

// Reason returns the first prevention reason
func (r *Request) Reason() error {
	return r.reason
}

// InsertRequest is passed to pre-insert hooks. Hooks may modify Docs; the
// edited documents are validated and checked for uniqueness again.
type InsertRequest struct {
	Request
	Docs []types.Document
}

// FindRequest is passed to pre-find hooks
type FindRequest struct {
	Request
	Cond types.Cond
}

// UpdateRequest is passed to pre-update hooks. Matched and Updated hold the
// dry-run result computed by the built-in hook.
type UpdateRequest struct {
	Request
	Cond    types.Cond
	Setter  Setter
	Matched []types.Document
	Updated []types.Document
}

// DeleteRequest is passed to pre-delete hooks
type DeleteRequest struct {
	Request
	Cond types.Cond
}

// InsertEvent is passed to post-insert hooks
type InsertEvent struct {
	Collection string
	Docs       []types.Document
}

// FindEvent is passed to post-find hooks
type FindEvent struct {
	Collection string
	Cond       types.Cond
	Docs       []types.Document
}

// UpdateEvent is passed to post-update hooks. Before holds deep copies taken
// before the mutation, After the stored documents.
type UpdateEvent struct {
	Collection string
	Cond       types.Cond
	Before     []types.Document
	After      []types.Document
}

// DeleteEvent is passed to post-delete hooks
type DeleteEvent struct {
	Collection string
	Cond       types.Cond
	Docs       []types.Document
}

// Hook signatures. A returned error aborts the operation.
type (
	PreInsertHook  func(ctx context.Context, req *InsertRequest) error
	PostInsertHook func(ctx context.Context, ev *InsertEvent) error
	PreFindHook    func(ctx context.Context, req *FindRequest) error
	PostFindHook   func(ctx context.Context, ev *FindEvent) error
	PreUpdateHook  func(ctx context.Context, req *UpdateRequest) error
	PostUpdateHook func(ctx context.Context, ev *UpdateEvent) error
	PreDeleteHook  func(ctx context.Context, req *DeleteRequest) error
	PostDeleteHook func(ctx context.Context, ev *DeleteEvent) error
)

// hookSet holds the registrations of one collection
type hookSet struct {
	preInsert  []PreInsertHook
	postInsert []PostInsertHook
	preFind    []PreFindHook
	postFind   []PostFindHook
	preUpdate  []PreUpdateHook
	postUpdate []PostUpdateHook
	preDelete  []PreDeleteHook
	postDelete []PostDeleteHook
}

// runHooks calls every hook in registration order and stops at the first error
func runHooks[T any, H ~func(context.Context, T) error](ctx context.Context, hooks []H, arg T) error {
	for _, hook := range hooks {
		if err := hook(ctx, arg); err != nil {
			return err
		}
	}
	return nil
}

// OnPreInsert registers a pre-insert hook
func (c *Collection) OnPreInsert(hook PreInsertHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.preInsert = append(c.hooks.preInsert, hook)
}

// OnPostInsert registers a post-insert hook
func (c *Collection) OnPostInsert(hook PostInsertHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.postInsert = append(c.hooks.postInsert, hook)
}

// OnPreFind registers a pre-find hook
func (c *Collection) OnPreFind(hook PreFindHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.preFind = append(c.hooks.preFind, hook)
}

// OnPostFind registers a post-find hook
func (c *Collection) OnPostFind(hook PostFindHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.postFind = append(c.hooks.postFind, hook)
}

// OnPreUpdate registers a pre-update hook
func (c *Collection) OnPreUpdate(hook PreUpdateHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.preUpdate = append(c.hooks.preUpdate, hook)
}

// OnPostUpdate registers a post-update hook
func (c *Collection) OnPostUpdate(hook PostUpdateHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.postUpdate = append(c.hooks.postUpdate, hook)
}

// OnPreDelete registers a pre-delete hook
func (c *Collection) OnPreDelete(hook PreDeleteHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.preDelete = append(c.hooks.preDelete, hook)
}

// OnPostDelete registers a post-delete hook
func (c *Collection) OnPostDelete(hook PostDeleteHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks.postDelete = append(c.hooks.postDelete, hook)
}

// snapshotHooks copies the registrations so hooks can register more hooks
// without deadlocking
func (c *Collection) snapshotHooks() hookSet {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return hookSet{
		preInsert:  append([]PreInsertHook(nil), c.hooks.preInsert...),
		postInsert: append([]PostInsertHook(nil), c.hooks.postInsert...),
		preFind:    append([]PreFindHook(nil), c.hooks.preFind...),
		postFind:   append([]PostFindHook(nil), c.hooks.postFind...),
		preUpdate:  append([]PreUpdateHook(nil), c.hooks.preUpdate...),
		postUpdate: append([]PostUpdateHook(nil), c.hooks.postUpdate...),
		preDelete:  append([]PreDeleteHook(nil), c.hooks.preDelete...),
		postDelete: append([]PostDeleteHook(nil), c.hooks.postDelete...),
	}
}
