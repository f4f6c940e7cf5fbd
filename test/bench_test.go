package test

import (
	"testing"
	"time"

	"na-rpc/client"
	"na-rpc/codec"
	"na-rpc/loadbalance"
	"na-rpc/message"
	"na-rpc/registry"
	"na-rpc/server"
)

// MockRegistry keeps instances in memory so benchmarks and the bulk test
// run without a live etcd.
type MockRegistry struct {
	instances map[string][]registry.ServiceInstance
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{instances: make(map[string][]registry.ServiceInstance)}
}

func (m *MockRegistry) Register(serviceName string, inst registry.ServiceInstance, ttl int64) error {
	m.instances[serviceName] = append(m.instances[serviceName], inst)
	return nil
}

func (m *MockRegistry) Deregister(serviceName string, addr string) error {
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRegistry) Discover(serviceName string) ([]registry.ServiceInstance, error) {
	return m.instances[serviceName], nil
}

func (m *MockRegistry) Watch(serviceName string) <-chan []registry.ServiceInstance {
	return nil
}

func setupServerAndClient(b *testing.B, addr string) (*server.Server, *client.Client) {
	svr := server.NewServer()
	if err := svr.Register(&Arith{}); err != nil {
		b.Fatal(err)
	}
	go svr.Serve(addr, "", nil)
	time.Sleep(100 * time.Millisecond)

	reg := NewMockRegistry()
	reg.Register("Arith", registry.ServiceInstance{Addr: addr}, 10)

	cli := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 8)
	return svr, cli
}

func BenchmarkSerialCall(b *testing.B) {
	svr, cli := setupServerAndClient(b, "127.0.0.1:29090")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	args := &Args{A: 1, B: 2}
	reply := &Reply{}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := cli.Call("Arith.Add", args, reply); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall is where multiplexing pays off: many callers
// share the transport pool instead of queueing behind one another.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, cli := setupServerAndClient(b, "127.0.0.1:29091")
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := &Args{A: 1, B: 2}
		reply := &Reply{}
		for pb.Next() {
			if err := cli.Call("Arith.Add", args, reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkCodec(b *testing.B, ct codec.CodecType) {
	cdc := codec.GetCodec(ct)
	msg := &message.RPCMessage{
		ServiceMethod: "Arith.Add",
		Payload:       []byte(`{"A":1,"B":2}`),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.RPCMessage
		cdc.Decode(data, &out)
	}
}

func BenchmarkCodecJSON(b *testing.B)   { benchmarkCodec(b, codec.CodecTypeJSON) }
func BenchmarkCodecBinary(b *testing.B) { benchmarkCodec(b, codec.CodecTypeBinary) }
