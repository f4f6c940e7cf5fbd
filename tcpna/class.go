package tcpna

import (
	"time"

	"na-rpc/na"
)

// Class is tcpna's na.Class implementation: the emulated-RMA-over-TCP
// substrate. It wraps a *State and performs the type assertions from
// na.Addr/na.MemHandle down to tcpna's concrete types at every entry
// point, so a handle or address from another backend fails loudly
// instead of misbehaving.
type Class struct {
	state *State
}

// New wraps an already-initialized State (see NewClient/NewServer) as an
// na.Class.
func New(state *State) *Class { return &Class{state: state} }

func (c *Class) Finalize() error { return c.state.finalize() }

// PortName returns the resolved listen address (server role only), the
// string a peer passes to AddrLookup and the one WritePortFile publishes.
func (c *Class) PortName() string { return c.state.PortName() }

func (c *Class) UnexpectedSize() int { return na.UnexpectedSize }

func (c *Class) AddrLookup(name string) (na.Addr, error) { return c.state.addrLookup(name) }

func (c *Class) AddrFree(a na.Addr) error {
	ta, ok := a.(*addr)
	if !ok {
		return na.NewError(na.ErrNullArgument, "addr_free: foreign address", nil)
	}
	return ta.free()
}

func (c *Class) SendUnexpected(buf []byte, dest na.Addr, tag na.Tag) (*na.Request, error) {
	return c.Send(buf, dest, tag)
}

func (c *Class) Send(buf []byte, dest na.Addr, tag na.Tag) (*na.Request, error) {
	ta, ok := dest.(*addr)
	if !ok {
		return nil, na.NewError(na.ErrNullArgument, "send: foreign address", nil)
	}
	return send(ta, buf, tag)
}

func (c *Class) RecvUnexpected(buf []byte) (*na.Request, na.Addr, na.Tag, error) {
	return recvUnexpected(c.state, buf)
}

func (c *Class) Recv(buf []byte, source na.Addr, tag na.Tag) (*na.Request, error) {
	ta, ok := source.(*addr)
	if !ok {
		return nil, na.NewError(na.ErrNullArgument, "recv: foreign address", nil)
	}
	return recv(ta, buf, tag)
}

func (c *Class) MemRegister(buf []byte, flags na.AccessFlag) (na.MemHandle, error) {
	return memRegister(c.state.handles, buf, flags)
}

func (c *Class) MemDeregister(h na.MemHandle) error {
	return memDeregister(c.state.handles, h)
}

func (c *Class) MemHandleSerialize(buf []byte, h na.MemHandle) (int, error) {
	return memHandleSerialize(buf, h)
}

func (c *Class) MemHandleDeserialize(buf []byte) (na.MemHandle, error) {
	return memHandleDeserialize(buf)
}

func (c *Class) MemHandleFree(h na.MemHandle) error {
	return memHandleFree(h)
}

func (c *Class) Put(local na.MemHandle, localOffset uint64, remote na.MemHandle, remoteOffset uint64, length uint64, remoteAddr na.Addr) (*na.Request, error) {
	lh, ra, rh, err := c.resolveRMA(local, remote, remoteAddr)
	if err != nil {
		return nil, err
	}
	return put(lh, localOffset, rh, remoteOffset, length, ra)
}

func (c *Class) Get(local na.MemHandle, localOffset uint64, remote na.MemHandle, remoteOffset uint64, length uint64, remoteAddr na.Addr) (*na.Request, error) {
	lh, ra, rh, err := c.resolveRMA(local, remote, remoteAddr)
	if err != nil {
		return nil, err
	}
	return get(lh, localOffset, rh, remoteOffset, length, ra)
}

func (c *Class) resolveRMA(local, remote na.MemHandle, remoteAddr na.Addr) (*memHandle, *addr, *memHandle, error) {
	lh, ok := local.(*memHandle)
	if !ok {
		return nil, nil, nil, na.NewError(na.ErrNullArgument, "rma: foreign local handle", nil)
	}
	rh, ok := remote.(*memHandle)
	if !ok {
		return nil, nil, nil, na.NewError(na.ErrNullArgument, "rma: foreign remote handle", nil)
	}
	ra, ok := remoteAddr.(*addr)
	if !ok {
		return nil, nil, nil, na.NewError(na.ErrNullArgument, "rma: foreign remote address", nil)
	}
	return lh, ra, rh, nil
}

func (c *Class) Wait(req *na.Request, timeout time.Duration) (na.Status, error) {
	return req.Wait(timeout)
}
