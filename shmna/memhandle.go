package shmna

import (
	"path/filepath"
	"sync"

	"github.com/rs/xid"

	"na-rpc/na"
)

// memHandle is shmna's na.MemHandle: either a locally registered region
// (own non-nil, this process created and owns the mapping) or a
// deserialized remote descriptor (own nil, path/len/flags only — mapped
// lazily on first Put/Get against it).
type memHandle struct {
	id     xid.ID
	path   string
	flags  na.AccessFlag
	length int

	own *mapping // non-nil only for a locally registered handle
}

func (h *memHandle) Len() int             { return h.length }
func (h *memHandle) Flags() na.AccessFlag { return h.flags }

// handleRegistry tracks every handle this process has registered (to
// serve Put/Get from the owning side) or deserialized (to target a peer's
// region), both keyed by id so MemDeregister/MemHandleFree can find them.
type handleRegistry struct {
	dir string

	mu   sync.Mutex
	byID map[xid.ID]*memHandle

	mapMu sync.Mutex
	maps  map[xid.ID]*mapping // lazily-opened mappings for remote handles
}

func newHandleRegistry(dir string) *handleRegistry {
	return &handleRegistry{
		dir:  dir,
		byID: make(map[xid.ID]*memHandle),
		maps: make(map[xid.ID]*mapping),
	}
}

func (r *handleRegistry) register(length int, flags na.AccessFlag) (*memHandle, error) {
	id := xid.New()
	path := filepath.Join(r.dir, id.String()+".shm")
	m, err := createMapping(path, length)
	if err != nil {
		return nil, err
	}
	h := &memHandle{id: id, path: path, flags: flags, length: length, own: m}

	r.mu.Lock()
	r.byID[id] = h
	r.mu.Unlock()
	return h, nil
}

func (r *handleRegistry) deregister(id xid.ID) bool {
	r.mu.Lock()
	h, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if h.own != nil {
		h.own.close(true)
	}
	return true
}

// mappingFor returns the mapping backing h, opening it on first use for a
// handle this process only holds a descriptor for.
func (r *handleRegistry) mappingFor(h *memHandle) (*mapping, error) {
	if h.own != nil {
		return h.own, nil
	}
	r.mapMu.Lock()
	defer r.mapMu.Unlock()
	if m, ok := r.maps[h.id]; ok {
		return m, nil
	}
	m, err := openMapping(h.path, h.length)
	if err != nil {
		return nil, err
	}
	r.maps[h.id] = m
	return m, nil
}

func (r *handleRegistry) closeAll() {
	r.mu.Lock()
	for _, h := range r.byID {
		if h.own != nil {
			h.own.close(true)
		}
	}
	r.byID = make(map[xid.ID]*memHandle)
	r.mu.Unlock()

	r.mapMu.Lock()
	for _, m := range r.maps {
		m.close(false)
	}
	r.maps = make(map[xid.ID]*mapping)
	r.mapMu.Unlock()
}
