package tcpna

import (
	"sync"

	"github.com/rs/xid"

	"na-rpc/na"
	"na-rpc/wire"
)

// memHandle is tcpna's na.MemHandle: either a locally registered region
// (buf non-nil, backed by process memory the RMA service reads/writes
// directly) or a deserialized remote descriptor (buf nil,
// id/length/flags only, used purely to address a Put/Get target).
// length is tracked separately from len(buf) so a deserialized handle,
// which owns no buffer, still reports the registered region's true
// size.
type memHandle struct {
	id     xid.ID
	buf    []byte
	length int
	flags  na.AccessFlag
}

func (h *memHandle) Len() int             { return h.length }
func (h *memHandle) Flags() na.AccessFlag { return h.flags }

// handleRegistry maps minted ids to registered regions. The RMA service
// consults it on every control record and holds mu across the copy it
// performs, so a concurrent deregister cannot yank a region out from
// under an in-flight serviced transfer.
type handleRegistry struct {
	mu   sync.Mutex
	byID map[xid.ID]*memHandle
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{byID: make(map[xid.ID]*memHandle)}
}

func (r *handleRegistry) register(buf []byte, flags na.AccessFlag) *memHandle {
	h := &memHandle{id: xid.New(), buf: buf, length: len(buf), flags: flags}
	r.mu.Lock()
	r.byID[h.id] = h
	r.mu.Unlock()
	return h
}

func (r *handleRegistry) deregister(id xid.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

func (r *handleRegistry) lookup(id xid.ID) (*memHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	return h, ok
}

func memRegister(reg *handleRegistry, buf []byte, flags na.AccessFlag) (na.MemHandle, error) {
	if buf == nil {
		return nil, na.NewError(na.ErrNullArgument, "mem_register: nil buffer", nil)
	}
	return reg.register(buf, flags), nil
}

func memDeregister(reg *handleRegistry, h na.MemHandle) error {
	mh, ok := h.(*memHandle)
	if !ok {
		return na.NewError(na.ErrNullArgument, "mem_deregister: foreign handle", nil)
	}
	if !reg.deregister(mh.id) {
		return na.NewError(na.ErrDoubleFree, "mem_deregister: already deregistered", nil)
	}
	return nil
}

func memHandleSerialize(buf []byte, h na.MemHandle) (int, error) {
	mh, ok := h.(*memHandle)
	if !ok {
		return 0, na.NewError(na.ErrNullArgument, "mem_handle_serialize: foreign handle", nil)
	}
	d := wire.MemHandleDescriptor{ID: mh.id, Len: uint64(mh.length), Flags: uint64(mh.flags)}
	if err := d.Encode(buf); err != nil {
		return 0, na.NewError(na.ErrBufferTooSmall, err.Error(), err)
	}
	return wire.MemHandleSize, nil
}

func memHandleDeserialize(buf []byte) (na.MemHandle, error) {
	d, err := wire.DecodeMemHandle(buf)
	if err != nil {
		return nil, na.NewError(na.ErrBufferTooSmall, err.Error(), err)
	}
	// buf stays nil: a deserialized handle addresses remote memory and
	// owns none of its own. length is carried through byte-for-byte so
	// Len() matches the originating descriptor.
	return &memHandle{id: d.ID, buf: nil, length: int(d.Len), flags: na.AccessFlag(d.Flags)}, nil
}

func memHandleFree(h na.MemHandle) error {
	if _, ok := h.(*memHandle); !ok {
		return na.NewError(na.ErrNullArgument, "mem_handle_free: foreign handle", nil)
	}
	return nil
}
