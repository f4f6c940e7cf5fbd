package tcpna

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"na-rpc/na"
)

// addr is tcpna's Addr implementation: a pair of connections (primary
// for ordinary two-sided traffic, side for RMA control/payload/ack
// exchanges) together with the RMA service goroutine reading that side
// channel. Keeping RMA on its own connection means control records and
// payloads never contend with, or get misrouted into, the tagged
// application traffic on the primary.
type addr struct {
	state *State

	primary *conn
	side    *conn

	rank int

	// isReference marks an address synthesized by RecvUnexpected rather
	// than obtained via AddrLookup. A reference address borrows the
	// connections that the accept/pairing machinery already set up and
	// is never individually disconnected; only Finalize tears its
	// connections down.
	isReference atomic.Bool

	freed atomic.Bool

	// rmaMu serializes Put/Get on this address: only one locally
	// initiated RMA exchange is in flight on the side channel at a
	// time, so a control record and its payload are never interleaved
	// with another transfer's.
	rmaMu sync.Mutex

	rmaCancel context.CancelFunc
	rmaDone   chan struct{}
}

func (a *addr) IsReference() bool { return a.isReference.Load() }

// newAddr builds an addr over an already-connected (primary, side) pair,
// starts both reader loops, and launches the RMA service that lets peers
// PUT/GET against any memory this process has registered.
func newAddr(state *State, primary, side net.Conn, rank int) *addr {
	pc := newConn(primary, false)
	sc := newConn(side, true)

	a := &addr{
		state:   state,
		primary: pc,
		side:    sc,
		rank:    rank,
	}

	go pc.readLoop()
	go sc.readLoop()

	ctx, cancel := context.WithCancel(context.Background())
	a.rmaCancel = cancel
	a.rmaDone = make(chan struct{})
	go a.runRMAService(ctx)

	return a
}

func (a *addr) free() error {
	if !a.freed.CompareAndSwap(false, true) {
		return na.NewError(na.ErrDoubleFree, "address already freed", nil)
	}
	if a.isReference.Load() {
		// Borrows the underlying connections; Finalize owns their
		// teardown.
		return nil
	}
	a.sendEnd()
	a.rmaCancel()
	a.primary.close()
	a.side.close()
	<-a.rmaDone
	return nil
}
