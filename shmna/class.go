package shmna

import (
	"time"

	"na-rpc/na"
)

// Class is shmna's na.Class implementation.
type Class struct {
	state *State
}

func New(state *State) *Class { return &Class{state: state} }

func (c *Class) Finalize() error { return c.state.finalize() }

// SocketPath returns the Unix socket this server listens on (server
// role only), the name a peer passes to AddrLookup.
func (c *Class) SocketPath() string { return c.state.SocketPath() }

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
	// shmna's registered regions are independent mmap'd files, not a
	// view over an existing Go slice: RMA correctness requires a region
	// visible to other processes, which a heap-allocated []byte is not.
	h, err := c.state.handles.register(len(buf), flags)
	if err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}
	if err := h.own.withLock(func(mapped []byte) error {
		copy(mapped, buf)
		return nil
	}); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}
	return h, nil
}

func (c *Class) MemDeregister(h na.MemHandle) error {
	mh, ok := h.(*memHandle)
	if !ok {
		return na.NewError(na.ErrNullArgument, "mem_deregister: foreign handle", nil)
	}
	if !c.state.handles.deregister(mh.id) {
		return na.NewError(na.ErrDoubleFree, "mem_deregister: already deregistered", nil)
	}
	return nil
}

func (c *Class) MemHandleSerialize(buf []byte, h na.MemHandle) (int, error) {
	mh, ok := h.(*memHandle)
	if !ok {
		return 0, na.NewError(na.ErrNullArgument, "mem_handle_serialize: foreign handle", nil)
	}
	n, err := encodeDescriptor(buf, mh)
	if err != nil {
		return 0, na.NewError(na.ErrBufferTooSmall, err.Error(), err)
	}
	return n, nil
}

func (c *Class) MemHandleDeserialize(buf []byte) (na.MemHandle, error) {
	h, err := decodeDescriptor(buf)
	if err != nil {
		return nil, na.NewError(na.ErrBufferTooSmall, err.Error(), err)
	}
	return h, nil
}

func (c *Class) MemHandleFree(h na.MemHandle) error {
	if _, ok := h.(*memHandle); !ok {
		return na.NewError(na.ErrNullArgument, "mem_handle_free: foreign handle", nil)
	}
	return nil
}

func (c *Class) Put(local na.MemHandle, localOffset uint64, remote na.MemHandle, remoteOffset uint64, length uint64, remoteAddr na.Addr) (*na.Request, error) {
	lh, rh, err := resolveHandles(local, remote)
	if err != nil {
		return nil, err
	}
	return put(c.state.handles, lh, localOffset, rh, remoteOffset, length)
}

func (c *Class) Get(local na.MemHandle, localOffset uint64, remote na.MemHandle, remoteOffset uint64, length uint64, remoteAddr na.Addr) (*na.Request, error) {
	lh, rh, err := resolveHandles(local, remote)
	if err != nil {
		return nil, err
	}
	return get(c.state.handles, lh, localOffset, rh, remoteOffset, length)
}

func resolveHandles(local, remote na.MemHandle) (*memHandle, *memHandle, error) {
	lh, ok := local.(*memHandle)
	if !ok {
		return nil, nil, na.NewError(na.ErrNullArgument, "rma: foreign local handle", nil)
	}
	rh, ok := remote.(*memHandle)
	if !ok {
		return nil, nil, na.NewError(na.ErrNullArgument, "rma: foreign remote handle", nil)
	}
	return lh, rh, nil
}

func (c *Class) Wait(req *na.Request, timeout time.Duration) (na.Status, error) {
	return req.Wait(timeout)
}
