package shmna

import (
	"net"
	"sync"
	"sync/atomic"

	"na-rpc/matchbox"
	"na-rpc/na"
)

// addr is shmna's na.Addr: a single Unix-domain connection used only for
// two-sided messaging. There is no side channel, because PUT/GET never
// touch it — they act directly on the shared mapping.
type addr struct {
	state *State

	nc net.Conn

	writeMu sync.Mutex

	boxMu sync.RWMutex
	box   *matchbox.Box

	any *matchbox.AnyBox

	isReference atomic.Bool
	freed       atomic.Bool

	done chan struct{}
}

func (a *addr) IsReference() bool { return a.isReference.Load() }

func newAddr(state *State, nc net.Conn) *addr {
	a := &addr{state: state, nc: nc, done: make(chan struct{})}
	go a.readLoop()
	return a
}

func (a *addr) setBox(b *matchbox.Box) {
	a.boxMu.Lock()
	a.box = b
	a.boxMu.Unlock()
}

// bindBox installs b and re-routes frames that reached the unexpected
// queue between the probe and the reader observing the new box; see
// readLoop, which delivers to the AnyBox only under the read lock.
func (a *addr) bindBox(b *matchbox.Box) {
	a.boxMu.Lock()
	defer a.boxMu.Unlock()
	a.box = b
	if a.any != nil {
		for _, arr := range a.any.DrainSource(a) {
			b.Deliver(matchbox.Arrival{Tag: arr.Tag, Data: arr.Data, Err: arr.Err})
		}
	}
}

func (a *addr) getBox() *matchbox.Box {
	a.boxMu.RLock()
	defer a.boxMu.RUnlock()
	return a.box
}

func (a *addr) write(tag uint32, body []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return writeFrame(a.nc, tag, body)
}

func (a *addr) readLoop() {
	for {
		tag, body, err := readFrame(a.nc)
		if err != nil {
			if b := a.getBox(); b != nil {
				b.Broadcast(err)
			}
			close(a.done)
			return
		}
		a.boxMu.RLock()
		b := a.box
		if b == nil && a.any != nil {
			a.any.Deliver(matchbox.AnyArrival{Source: a, Tag: tag, Data: body})
			a.boxMu.RUnlock()
			continue
		}
		a.boxMu.RUnlock()
		if b != nil {
			b.Deliver(matchbox.Arrival{Tag: tag, Data: body})
		}
	}
}

func (a *addr) free() error {
	if !a.freed.CompareAndSwap(false, true) {
		return na.NewError(na.ErrDoubleFree, "address already freed", nil)
	}
	if a.isReference.Load() {
		return nil
	}
	a.nc.Close()
	return nil
}
