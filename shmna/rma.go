package shmna

import "na-rpc/na"

// put copies length bytes from local's own mapping into remote's
// mapping (opened lazily if this process only holds a deserialized
// descriptor for it) under flock, and completes synchronously: there is
// no control-record round trip to wait on, so the Request returned is
// already done.
func put(reg *handleRegistry, local *memHandle, localOffset uint64, remote *memHandle, remoteOffset, length uint64) (*na.Request, error) {
	if remote.flags != na.ReadWrite {
		return nil, na.NewError(na.ErrPermission, "put: remote handle is not writable", nil)
	}

	lm, err := reg.mappingFor(local)
	if err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}
	rm, err := reg.mappingFor(remote)
	if err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	data := make([]byte, length)
	if err := lm.withLock(func(buf []byte) error {
		copy(data, buf[localOffset:localOffset+length])
		return nil
	}); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	if err := rm.withLock(func(buf []byte) error {
		copy(buf[remoteOffset:remoteOffset+length], data)
		return nil
	}); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	return na.NewRequest(na.SendOp, na.CompletedWaiter(int(length), nil), nil), nil
}

// get is put's mirror image. Like tcpna's get it performs no
// access-flag check: registration grants read access in both modes.
func get(reg *handleRegistry, local *memHandle, localOffset uint64, remote *memHandle, remoteOffset, length uint64) (*na.Request, error) {
	rm, err := reg.mappingFor(remote)
	if err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}
	lm, err := reg.mappingFor(local)
	if err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	data := make([]byte, length)
	if err := rm.withLock(func(buf []byte) error {
		copy(data, buf[remoteOffset:remoteOffset+length])
		return nil
	}); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	if err := lm.withLock(func(buf []byte) error {
		copy(buf[localOffset:localOffset+length], data)
		return nil
	}); err != nil {
		return nil, na.NewError(na.ErrSubstrate, err.Error(), err)
	}

	return na.NewRequest(na.RecvOp, na.CompletedWaiter(int(length), nil), nil), nil
}
