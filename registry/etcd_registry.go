package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry stores instances in etcd v3 under
//
//	/na-rpc/{ServiceName}/{Addr} → JSON ServiceInstance
//
// Each registration rides a TTL lease: a crashed server stops renewing,
// the lease lapses, and etcd drops the entry on its own — no ghost
// instances for clients to dial.
type EtcdRegistry struct {
	// The etcd client is safe for concurrent use; one is shared across
	// every goroutine touching this registry.
	client *clientv3.Client
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register grants a lease of ttl seconds, writes the instance under it,
// and starts keep-alive renewal in the background. The lease ID stays a
// local — storing it on the struct races when several servers share one
// EtcdRegistry.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, "/na-rpc/"+serviceName+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain keep-alive acks so the channel never backs up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister deletes the instance's key immediately, ahead of the lease
// expiring on its own.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), "/na-rpc/"+serviceName+"/"+addr)
	return err
}

// Watch subscribes to the service prefix and pushes a re-fetched
// instance list on every change. Re-running Discover is simpler than
// folding individual watch events into a local copy, and membership
// churn is rare enough that the extra Get does not matter.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	prefix := "/na-rpc/" + serviceName + "/"

	go func() {
		watchChan := r.client.Watch(context.TODO(), prefix, clientv3.WithPrefix())
		for range watchChan {
			instances, _ := r.Discover(serviceName)
			ch <- instances
		}
	}()

	return ch
}

// Discover lists every instance registered under the service's prefix.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(context.TODO(), "/na-rpc/"+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip a malformed entry rather than failing the whole list
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
