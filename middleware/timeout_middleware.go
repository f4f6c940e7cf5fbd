package middleware

import (
	"context"
	"time"

	"na-rpc/message"
)

// TimeOutMiddleware bounds how long the caller waits for a handler. The
// handler runs in its own goroutine and races ctx.Done(); on timeout the
// caller gets an error response while the handler keeps running in the
// background — true cancellation requires the handler to watch ctx
// itself. The result channel is buffered so an abandoned handler can
// still deliver and exit.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return &message.RPCMessage{Error: "request timed out"}
			}
		}
	}
}
