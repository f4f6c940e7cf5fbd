package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"na-rpc/message"
)

// RetryMiddleware re-invokes the handler on transient failures (timeouts,
// refused connections) with exponential backoff, up to maxRetries extra
// attempts. Any other error returns immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	retryable := func(errText string) bool {
		return strings.Contains(errText, "timeout") || strings.Contains(errText, "timed out") ||
			strings.Contains(errText, "connection refused")
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			resp := next(ctx, req)
			for attempt := 1; attempt <= maxRetries; attempt++ {
				if resp.Error == "" || !retryable(resp.Error) {
					return resp
				}
				log.Printf("Retry attempt %d for %s due to error: %s", attempt, req.ServiceMethod, resp.Error)
				time.Sleep(baseDelay * time.Duration(1<<(attempt-1)))
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
