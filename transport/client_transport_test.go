package transport_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"na-rpc/codec"
	"na-rpc/na"
	"na-rpc/naclass"
	"na-rpc/server"
	"na-rpc/transport"
)

func dialNA(t *testing.T, addr string) (na.Class, na.Addr) {
	t.Helper()
	cls, err := naclass.New(naclass.Config{Backend: naclass.BackendTCP})
	if err != nil {
		t.Fatal(err)
	}
	a, err := cls.AddrLookup(addr)
	if err != nil {
		t.Fatal(err)
	}
	return cls, a
}

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func startArith(t *testing.T, listen string) {
	t.Helper()
	svr := server.NewServer()
	if err := svr.Register(&Arith{}); err != nil {
		t.Fatal(err)
	}
	go svr.Serve(listen, "", nil)
	time.Sleep(100 * time.Millisecond)
}

func TestClientTransportSerial(t *testing.T) {
	startArith(t, ":9001")

	cls, addr := dialNA(t, ":9001")
	ct := transport.NewClientTransport(transport.NewNAConn(cls, addr), codec.CodecTypeJSON)

	cases := []struct {
		a, b, want int
	}{
		{1, 2, 3},
		{10, 20, 30},
		{100, 200, 300},
	}

	for _, tc := range cases {
		_, ch, err := ct.Send("Arith.Add", &Args{A: tc.a, B: tc.b})
		if err != nil {
			t.Fatal(err)
		}
		resp := <-ch
		if resp.Error != "" {
			t.Fatalf("server error: %s", resp.Error)
		}
		var reply Reply
		if err := json.Unmarshal(resp.Payload, &reply); err != nil {
			t.Fatal(err)
		}
		if reply.Result != tc.want {
			t.Fatalf("Add(%d,%d) = %d, want %d", tc.a, tc.b, reply.Result, tc.want)
		}
	}
}

// TestClientTransportConcurrent is the core multiplexing test: many
// callers on one connection, responses routed back by sequence number.
func TestClientTransportConcurrent(t *testing.T) {
	startArith(t, ":9002")

	cls, addr := dialNA(t, ":9002")
	ct := transport.NewClientTransport(transport.NewNAConn(cls, addr), codec.CodecTypeJSON)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, ch, err := ct.Send("Arith.Add", &Args{A: n, B: n})
			if err != nil {
				t.Errorf("send failed: %v", err)
				return
			}
			resp := <-ch
			if resp.Error != "" {
				t.Errorf("server error: %s", resp.Error)
				return
			}
			var reply Reply
			if err := json.Unmarshal(resp.Payload, &reply); err != nil {
				t.Errorf("unmarshal failed: %v", err)
				return
			}
			if reply.Result != n*2 {
				t.Errorf("Add(%d,%d) = %d, want %d", n, n, reply.Result, n*2)
			}
		}(i)
	}
	wg.Wait()
}
