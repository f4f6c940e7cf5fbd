package middleware

import (
	"context"
	"testing"
	"time"

	"na-rpc/message"
)

func echoHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: []byte("ok")}
}

func slowHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	time.Sleep(200 * time.Millisecond)
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: []byte("ok")}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware()(echoHandler)
	resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Add"})
	if resp == nil || string(resp.Payload) != "ok" {
		t.Fatalf("response = %+v, want payload %q", resp, "ok")
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)
	resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Add"})
	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)
	resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Add"})
	if resp.Error != "request timed out" {
		t.Fatalf("Error = %q, want timeout", resp.Error)
	}
}

func TestRateLimit(t *testing.T) {
	// burst of 2 at 1 token/s: the first two calls pass, the third is shed.
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := &message.RPCMessage{ServiceMethod: "Arith.Add"}

	for i := 0; i < 2; i++ {
		if resp := handler(context.Background(), req); resp.Error != "" {
			t.Fatalf("request %d rejected: %s", i, resp.Error)
		}
	}
	if resp := handler(context.Background(), req); resp.Error != "rate limit exceeded" {
		t.Fatalf("third request Error = %q, want rate limit exceeded", resp.Error)
	}
}

func TestRetryGivesUpOnPermanentError(t *testing.T) {
	calls := 0
	failing := func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
		calls++
		return &message.RPCMessage{Error: "divide by zero"}
	}
	handler := RetryMiddleware(3, time.Millisecond)(failing)
	resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Div"})
	if resp.Error != "divide by zero" {
		t.Fatalf("Error = %q, want divide by zero", resp.Error)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1 (non-retryable error)", calls)
	}
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
		calls++
		if calls < 3 {
			return &message.RPCMessage{Error: "connection refused"}
		}
		return &message.RPCMessage{Payload: []byte("ok")}
	}
	handler := RetryMiddleware(3, time.Millisecond)(flaky)
	resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Add"})
	if resp.Error != "" {
		t.Fatalf("Error = %q after retries, want success", resp.Error)
	}
	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
				order = append(order, name+"-in")
				resp := next(ctx, req)
				order = append(order, name+"-out")
				return resp
			}
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(echoHandler)
	if resp := handler(context.Background(), &message.RPCMessage{ServiceMethod: "Arith.Add"}); resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}

	want := []string{"outer-in", "inner-in", "inner-out", "outer-out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
