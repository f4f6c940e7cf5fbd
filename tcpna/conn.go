package tcpna

import (
	"net"
	"sync"

	"na-rpc/matchbox"
)

// conn wraps one physical net.Conn (either a primary or side channel) with
// a background reader goroutine that demultiplexes incoming frames: tagged
// application/RMA frames go to box (keyed by tag), side-channel control
// records go to control, and — for a primary connection not yet bound to a
// specific address — unmatched frames fall through to any, the server's
// unexpected-message fan-in.
//
// This is the single demultiplexing point per connection: exactly one
// goroutine ever calls readFrame on a given net.Conn.
type conn struct {
	nc net.Conn

	writeMu sync.Mutex

	boxMu sync.RWMutex
	box   *matchbox.Box

	any *matchbox.AnyBox // only set for an unbound server-side primary conn

	control chan []byte // only drained by a side channel's RMA service

	done chan struct{}
}

func newConn(nc net.Conn, isSide bool) *conn {
	c := &conn{nc: nc, done: make(chan struct{})}
	if isSide {
		c.box = matchbox.New()
		c.control = make(chan []byte, 8)
	}
	return c
}

func (c *conn) setBox(b *matchbox.Box) {
	c.boxMu.Lock()
	c.box = b
	c.boxMu.Unlock()
}

// bindBox installs b as this connection's matcher and re-routes frames
// that reached the unexpected queue between the probe and the reader
// observing the new box. The write lock is held across the drain:
// readLoop delivers to the AnyBox only under the read lock, so every
// racing frame is either already drained here or delivered to b after
// this returns — never stranded, never reordered.
func (c *conn) bindBox(b *matchbox.Box) {
	c.boxMu.Lock()
	defer c.boxMu.Unlock()
	c.box = b
	if c.any != nil {
		for _, a := range c.any.DrainSource(c) {
			b.Deliver(matchbox.Arrival{Tag: a.Tag, Data: a.Data, Err: a.Err})
		}
	}
}

func (c *conn) getBox() *matchbox.Box {
	c.boxMu.RLock()
	defer c.boxMu.RUnlock()
	return c.box
}

func (c *conn) write(tag uint32, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.nc, tag, body)
}

// readLoop is the connection's sole reader; it runs until the connection
// breaks, at which point it broadcasts the error to every parked waiter so
// nobody blocks forever on a dead peer.
func (c *conn) readLoop() {
	for {
		tag, body, err := readFrame(c.nc)
		if err != nil {
			if b := c.getBox(); b != nil {
				b.Broadcast(err)
			}
			if c.control != nil {
				close(c.control)
			}
			close(c.done)
			return
		}

		if c.control != nil && tag == tagControl {
			c.control <- body
			continue
		}

		c.boxMu.RLock()
		b := c.box
		if b == nil && c.any != nil {
			// Delivering under the read lock keeps this ordered with
			// bindBox's drain.
			c.any.Deliver(matchbox.AnyArrival{Source: c, Tag: tag, Data: body})
			c.boxMu.RUnlock()
			continue
		}
		c.boxMu.RUnlock()
		if b != nil {
			b.Deliver(matchbox.Arrival{Tag: tag, Data: body})
			continue
		}
		// No route yet (a just-accepted primary conn between pairing and
		// being bound). Drop: nothing could have legitimately sent on it
		// this early.
	}
}

func (c *conn) close() { c.nc.Close() }
