package registry

import (
	"context"
	"testing"
	"time"
)

// needsEtcd connects to a local etcd or skips the test: discovery tests
// exercise a real store, not a mock of one.
func needsEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Get(ctx, "/na-rpc/ping"); err != nil {
		t.Skipf("etcd not reachable: %v", err)
	}
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := needsEtcd(t)

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register("Arith", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("Arith", inst2, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister("Arith", inst2.Addr)

	instances, err := reg.Discover("Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("Discover returned %d instances, want 2", len(instances))
	}

	if err := reg.Deregister("Arith", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("Discover after Deregister returned %d instances, want 1", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("remaining instance = %s, want %s", instances[0].Addr, inst2.Addr)
	}
}
