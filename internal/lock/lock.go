package lock

import (
	"context"
	"sync"

	pkgerrors "trackerbridge/pkg/errors"
)

// Manager acquires exclusive per-subject locks. Lock blocks until the lock
// is held and registers the release with the ambient lock context, so every
// lock taken during one unit of work is released when that unit ends.
type Manager interface {
	Lock(ctx context.Context, key string) error
}

// SubjectKey builds the canonical lock key for a tracked subject.
func SubjectKey(subjectID string) string {
	return "subject:" + subjectID
}

type contextKey struct{}

// Context is the unit-of-work lock scope. It collects release callbacks and
// runs them, in reverse order, when the unit of work closes.
type Context struct {
	mu       sync.Mutex
	releases []func(ctx context.Context) error
	held     map[string]struct{}
}

// NewContext opens a lock scope and attaches it to the context.
func NewContext(ctx context.Context) (context.Context, *Context) {
	lc := &Context{held: make(map[string]struct{})}
	return context.WithValue(ctx, contextKey{}, lc), lc
}

// FromContext returns the active lock scope, or an invariant-violation error
// when none is open. Calling Lock outside a scope is a programming error,
// never something to skip silently.
func FromContext(ctx context.Context) (*Context, error) {
	lc, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || lc == nil {
		return nil, pkgerrors.ErrFatal.WithMessage("no lock context active")
	}
	return lc, nil
}

// Holds reports whether the scope already owns the key, making re-entrant
// Lock calls within one unit of work cheap no-ops.
func (c *Context) Holds(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[key]
	return ok
}

func (c *Context) register(key string, release func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[key] = struct{}{}
	c.releases = append(c.releases, release)
}

// Close releases every held lock in reverse acquisition order. The first
// release error is returned, but all releases run regardless.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	releases := c.releases
	c.releases = nil
	c.held = make(map[string]struct{})
	c.mu.Unlock()

	var firstErr error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
