package tcpna

import (
	"na-rpc/matchbox"
	"na-rpc/na"
)

// send implements both Send and SendUnexpected: the two differ only on
// the receiving side (a pre-posted Recv versus an unexpected-message
// probe), so one non-blocking tagged send serves both names.
func send(dst *addr, buf []byte, tag na.Tag) (*na.Request, error) {
	data := make([]byte, len(buf))
	copy(data, buf)

	w := na.NewChanWaiter(func() (int, error) {
		if err := dst.primary.write(uint32(tag), data); err != nil {
			return 0, na.NewError(na.ErrSubstrate, err.Error(), err)
		}
		return len(data), nil
	})
	return na.NewRequest(na.SendOp, w, nil), nil
}

// recv posts a non-blocking receive matching source and tag exactly,
// backed by that address's primary Box.
func recv(src *addr, buf []byte, tag na.Tag) (*na.Request, error) {
	ch := src.primary.getBox().Post(uint32(tag))
	w := na.NewChanWaiter(func() (int, error) {
		a := <-ch
		if a.Err != nil {
			return 0, a.Err
		}
		if len(a.Data) > len(buf) {
			return 0, na.NewError(na.ErrBufferTooSmall, "recv: message larger than buffer", nil)
		}
		n := copy(buf, a.Data)
		return n, nil
	})
	return na.NewRequest(na.RecvOp, w, nil), nil
}

// recvUnexpected probes the shared AnyBox fed by every not-yet-bound
// accepted connection. A successful probe synthesizes a reference addr
// (if this connection hasn't produced one already) and returns a
// Request that completes immediately, since the full message is already
// in hand.
func recvUnexpected(state *State, buf []byte) (*na.Request, na.Addr, na.Tag, error) {
	arrival, ok := state.unexpected.Peek()
	if !ok {
		return nil, nil, 0, nil
	}
	if len(arrival.Data) > len(buf) {
		return nil, nil, 0, na.NewError(na.ErrBufferTooSmall, "recv_unexpected: message larger than buffer", nil)
	}
	state.unexpected.PopFront()

	c, _ := arrival.Source.(*conn)
	a := state.bindUnbound(c)

	n := copy(buf, arrival.Data)
	w := na.CompletedWaiter(n, nil)
	return na.NewRequest(na.RecvOp, w, nil), a, na.Tag(arrival.Tag), nil
}

// bindUnbound turns a primary conn that has been routing to the server's
// AnyBox into a normally-matched connection: from this point on, further
// traffic from this peer must arrive via an explicit Recv(addr, tag). The
// first probe to observe a given peer mints its reference addr; later
// probes against the same peer (a second unexpected message before any
// Recv was posted) return the same addr.
func (s *State) bindUnbound(c *conn) na.Addr {
	s.addrsMu.Lock()
	defer s.addrsMu.Unlock()

	a, ok := s.byConn[c]
	if !ok {
		// Registered at pairing time in acceptLoop; absence means the
		// probe raced teardown.
		return nil
	}
	if a.isReference.CompareAndSwap(false, true) {
		c.bindBox(matchbox.New())
	}
	return a
}
