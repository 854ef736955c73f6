package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
)

// Handler processes a JSON-RPC request and returns a result or error.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// Middleware wraps the handler registered under method.
type Middleware func(method string, next Handler) Handler

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	methods map[string]Handler
	chain   []Middleware
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]Handler)}
}

// Register adds a handler for a method name. Registering a name twice panics.
func (r *MethodRegistry) Register(method string, handler Handler) {
	if _, dup := r.methods[method]; dup {
		panic("jsonrpc: duplicate registration of " + method)
	}
	r.methods[method] = handler
}

// Use appends middleware. The first middleware added is the outermost.
func (r *MethodRegistry) Use(mw ...Middleware) {
	r.chain = append(r.chain, mw...)
}

// Lookup returns the wrapped handler for a method, or nil if not found.
func (r *MethodRegistry) Lookup(method string) Handler {
	h := r.methods[method]
	if h == nil {
		return nil
	}
	for i := len(r.chain) - 1; i >= 0; i-- {
		h = r.chain[i](method, h)
	}
	return h
}

// Methods returns all registered method names, sorted.
func (r *MethodRegistry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Recover turns a handler panic into an internal error so one bad request
// cannot take down a connection.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(method string, next Handler) Handler {
		return func(ctx context.Context, params json.RawMessage) (result any, rpcErr *Error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("rpc handler panicked", "method", method, "panic", p)
					result, rpcErr = nil, ErrInternalError(fmt.Sprintf("%s failed", method))
				}
			}()
			return next(ctx, params)
		}
	}
}
