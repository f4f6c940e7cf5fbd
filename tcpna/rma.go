package tcpna

import (
	"context"
	"log"

	"na-rpc/na"
	"na-rpc/wire"
)

// runRMAService loops on the next control record from the side channel
// and services it against the process's handle registry. One service
// goroutine runs per address: each address owns a dedicated
// side-channel connection, so there is nothing to serialize across
// addresses, only within one (addr.rmaMu and the registry's own mutex
// cover that).
func (a *addr) runRMAService(ctx context.Context) {
	defer close(a.rmaDone)

	for {
		select {
		case <-ctx.Done():
			return
		case body, ok := <-a.side.control:
			if !ok {
				return
			}
			cr, err := wire.DecodeControlRecord(body)
			if err != nil {
				log.Printf("tcpna: rma service: malformed control record: %v", err)
				continue
			}
			if cr.Op == wire.ControlEnd {
				return
			}
			a.service(cr)
		}
	}
}

// sendEnd writes a ControlEnd record on the side channel so the peer's
// own runRMAService loop (its addr object representing this process)
// exits on an explicit signal rather than only on the connection
// breaking out from under it. Best-effort: a write failure here just
// means the peer sees the teardown as EOF instead, which runRMAService
// already treats as exit.
func (a *addr) sendEnd() {
	cr := wire.ControlRecord{Op: wire.ControlEnd}
	buf := make([]byte, wire.ControlRecordSize)
	if err := cr.Encode(buf); err != nil {
		return
	}
	a.rmaMu.Lock()
	a.side.write(tagControl, buf)
	a.rmaMu.Unlock()
}

func (a *addr) service(cr wire.ControlRecord) {
	// The registry mutex is held from lookup through the end of the
	// transfer, so a concurrent deregister waits for it to finish.
	a.state.handles.mu.Lock()
	defer a.state.handles.mu.Unlock()
	h, ok := a.state.handles.byID[cr.ID]
	if !ok {
		log.Printf("tcpna: rma service: unknown handle %s", cr.ID)
		return
	}

	switch cr.Op {
	case wire.ControlPut:
		payloadCh := a.side.getBox().Post(uint32(na.TagOneSided))
		arrival := <-payloadCh
		if arrival.Err != nil {
			return
		}
		copy(h.buf[cr.Disp:cr.Disp+cr.Count], arrival.Data)
		if err := a.side.write(uint32(na.TagOneSidedAck), []byte{1}); err != nil {
			log.Printf("tcpna: rma service: ack write failed: %v", err)
		}
		a.state.metrics.rmaPuts.Inc()
		a.state.metrics.rmaBytes.Add(float64(cr.Count))

	case wire.ControlGet:
		payload := make([]byte, cr.Count)
		copy(payload, h.buf[cr.Disp:cr.Disp+cr.Count])
		if err := a.side.write(uint32(na.TagOneSided), payload); err != nil {
			log.Printf("tcpna: rma service: get response write failed: %v", err)
		}
		a.state.metrics.rmaGets.Inc()
		a.state.metrics.rmaBytes.Add(float64(cr.Count))

	default:
		log.Printf("tcpna: rma service: unexpected op %v", cr.Op)
	}
}

// put issues a one-sided write: the control record plus payload travel
// together on the side channel, and the request carries a second waiter
// for the service's ack — the transfer is not observably complete at
// this end until that ack arrives.
func put(local *memHandle, localOffset uint64, remote *memHandle, remoteOffset, length uint64, ra *addr) (*na.Request, error) {
	if remote.flags != na.ReadWrite {
		return nil, na.NewError(na.ErrPermission, "put: remote handle is not writable", nil)
	}

	data := make([]byte, length)
	copy(data, local.buf[localOffset:localOffset+length])
	cr := wire.ControlRecord{ID: remote.id, Disp: remoteOffset, Count: length, Op: wire.ControlPut}
	crBuf := make([]byte, wire.ControlRecordSize)
	if err := cr.Encode(crBuf); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	ackCh := ra.side.getBox().Post(uint32(na.TagOneSidedAck))

	primary := na.NewChanWaiter(func() (int, error) {
		ra.rmaMu.Lock()
		defer ra.rmaMu.Unlock()

		if err := ra.side.write(tagControl, crBuf); err != nil {
			return 0, na.NewError(na.ErrSubstrate, err.Error(), err)
		}
		if err := ra.side.write(uint32(na.TagOneSided), data); err != nil {
			return 0, na.NewError(na.ErrSubstrate, err.Error(), err)
		}
		return int(length), nil
	})
	ack := na.NewChanWaiter(func() (int, error) {
		arrival := <-ackCh
		if arrival.Err != nil {
			return 0, arrival.Err
		}
		if len(arrival.Data) != 1 || arrival.Data[0] != 1 {
			return 0, na.NewError(na.ErrSubstrate, "put: malformed ack", nil)
		}
		return 1, nil
	})

	return na.NewRequest(na.SendOp, primary, ack), nil
}

// get issues a one-sided read. Unlike put, get performs no access-flag
// check: registration grants read access in both modes.
func get(local *memHandle, localOffset uint64, remote *memHandle, remoteOffset, length uint64, ra *addr) (*na.Request, error) {
	cr := wire.ControlRecord{ID: remote.id, Disp: remoteOffset, Count: length, Op: wire.ControlGet}
	crBuf := make([]byte, wire.ControlRecordSize)
	if err := cr.Encode(crBuf); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	payloadCh := ra.side.getBox().Post(uint32(na.TagOneSided))

	primary := na.NewChanWaiter(func() (int, error) {
		ra.rmaMu.Lock()
		err := ra.side.write(tagControl, crBuf)
		ra.rmaMu.Unlock()
		if err != nil {
			return 0, na.NewError(na.ErrSubstrate, err.Error(), err)
		}

		arrival := <-payloadCh
		if arrival.Err != nil {
			return 0, arrival.Err
		}
		copy(local.buf[localOffset:localOffset+length], arrival.Data)
		return len(arrival.Data), nil
	})

	return na.NewRequest(na.RecvOp, primary, nil), nil
}
