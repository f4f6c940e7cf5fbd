// Package middleware wraps RPC handlers with cross-cutting behavior:
// logging, deadlines, rate limiting, retries. A middleware never touches
// the transport — it sees only the decoded envelope — so the same chain
// runs unchanged whether the server listens on a raw socket or an NA
// class.
//
// Composition is the usual onion:
//
//	Chain(A, B, C)(handler) == A(B(C(handler)))
//
// so the first middleware listed runs first on the way in and last on
// the way out. A middleware may short-circuit by returning a response
// without calling next.
package middleware

import (
	"context"

	"na-rpc/message"
)

// HandlerFunc is the shape shared by business handlers and every wrapped
// layer above them.
type HandlerFunc func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage

// Middleware decorates a handler with one more layer.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain folds middlewares into one. Wrapping proceeds right to left so
// that the leftmost middleware ends up outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
