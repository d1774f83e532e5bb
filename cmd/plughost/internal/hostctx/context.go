// Package hostctx carries the centrally constructed host structures through
// a command's context.Context.
package hostctx

import (
	"context"
	"sync"

	"plughost.software/plughost/manager"
)

type ctxKey string

const key ctxKey = "plughost.software/plughost/cmd/plughost/internal/hostctx"

// Context is the plughost command line context. It holds pointers to
// structures that are created once during command setup and used by many
// commands, so access stays O(1) regardless of how often a command asks.
type Context struct {
	mu sync.RWMutex

	// manager is the plugin registry the invocation operates on. It is
	// constructed by the setup hook from the persistent flags.
	manager *manager.Manager
}

// WithManager creates a new context carrying the given manager. It can be
// retrieved with [FromContext] and [Context.Manager].
func WithManager(ctx context.Context, m *manager.Manager) context.Context {
	ctx, hctx := retrieveOrCreate(ctx)
	hctx.mu.Lock()
	defer hctx.mu.Unlock()
	hctx.manager = m
	return ctx
}

// FromContext returns the host context stored in ctx, or an empty one.
func FromContext(ctx context.Context) *Context {
	if hctx, ok := ctx.Value(key).(*Context); ok {
		return hctx
	}
	return &Context{}
}

// Manager returns the plugin manager, nil when setup has not run.
func (c *Context) Manager() *manager.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manager
}

func retrieveOrCreate(ctx context.Context) (context.Context, *Context) {
	if hctx, ok := ctx.Value(key).(*Context); ok {
		return ctx, hctx
	}
	hctx := &Context{}
	return context.WithValue(ctx, key, hctx), hctx
}
