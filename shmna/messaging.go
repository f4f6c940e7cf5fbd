package shmna

import "na-rpc/na"

func send(dst *addr, buf []byte, tag na.Tag) (*na.Request, error) {
	data := make([]byte, len(buf))
	copy(data, buf)
	w := na.NewChanWaiter(func() (int, error) {
		if err := dst.write(uint32(tag), data); err != nil {
			return 0, na.NewError(na.ErrSubstrate, err.Error(), err)
		}
		return len(data), nil
	})
	return na.NewRequest(na.SendOp, w, nil), nil
}

func recv(src *addr, buf []byte, tag na.Tag) (*na.Request, error) {
	ch := src.getBox().Post(uint32(tag))
	w := na.NewChanWaiter(func() (int, error) {
		a := <-ch
		if a.Err != nil {
			return 0, a.Err
		}
		if len(a.Data) > len(buf) {
			return 0, na.NewError(na.ErrBufferTooSmall, "recv: message larger than buffer", nil)
		}
		return copy(buf, a.Data), nil
	})
	return na.NewRequest(na.RecvOp, w, nil), nil
}

func recvUnexpected(state *State, buf []byte) (*na.Request, na.Addr, na.Tag, error) {
	arrival, ok := state.unexpected.Peek()
	if !ok {
		return nil, nil, 0, nil
	}
	if len(arrival.Data) > len(buf) {
		return nil, nil, 0, na.NewError(na.ErrBufferTooSmall, "recv_unexpected: message larger than buffer", nil)
	}
	state.unexpected.PopFront()

	a, _ := arrival.Source.(*addr)
	boundAddr := state.bindUnbound(a)

	n := copy(buf, arrival.Data)
	w := na.CompletedWaiter(n, nil)
	return na.NewRequest(na.RecvOp, w, nil), boundAddr, na.Tag(arrival.Tag), nil
}
