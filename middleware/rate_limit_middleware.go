package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"na-rpc/message"
)

// RateLimitMiddleware rejects calls once the token bucket runs dry:
// tokens refill at r per second up to burst, one call costs one token.
// The limiter lives in the outer closure — one bucket shared by every
// request through this chain, not a fresh bucket per call.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			if !limiter.Allow() {
				return &message.RPCMessage{Error: "rate limit exceeded"}
			}
			return next(ctx, req)
		}
	}
}
