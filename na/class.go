package na

import "time"

// Class is the NA class surface: the stable set of operations the RPC
// layer consumes, dispatched to whichever substrate-specific
// implementation (tcpna, shmna) backs this Class.
//
// Every operation reports failure as (zero-value, *Error) rather than a
// sign-carrying return code; the RPC layer branches on Error.Kind.
type Class interface {
	// Finalize tears down the process-wide NA state: for every connected
	// peer it terminates that peer's RMA service and releases owned
	// resources. Safe to call at most once.
	Finalize() error

	// UnexpectedSize returns the maximum unexpected-message size.
	UnexpectedSize() int

	// AddrLookup connects to the peer named by name (as read from
	// port.cfg, or passed directly) and returns an owned Addr.
	AddrLookup(name string) (Addr, error)
	// AddrFree releases addr. A reference address never disconnects;
	// a non-reference address does, and joins its RMA service. Freeing
	// an already-freed non-reference address returns ErrDoubleFree.
	AddrFree(addr Addr) error

	// SendUnexpected and Send are identical in shape: a non-blocking
	// tagged send. SendUnexpected exists as a distinct name only to
	// mirror the NA contract; RecvUnexpected is what differs.
	SendUnexpected(buf []byte, dest Addr, tag Tag) (*Request, error)
	Send(buf []byte, dest Addr, tag Tag) (*Request, error)

	// RecvUnexpected probes for any pending message from any source/tag.
	// If nothing is pending it returns (nil, nil, 0, nil) — success, no
	// request produced. If the pending message exceeds len(buf), it
	// fails with ErrBufferTooSmall without consuming the message. On
	// success it returns a completed Request plus the synthesized
	// reference Addr and the matched Tag.
	RecvUnexpected(buf []byte) (*Request, Addr, Tag, error)
	// Recv posts a non-blocking receive matching source and tag exactly.
	Recv(buf []byte, source Addr, tag Tag) (*Request, error)

	// MemRegister registers buf for remote access under the given
	// access mode and returns a serializable handle.
	MemRegister(buf []byte, flags AccessFlag) (MemHandle, error)
	MemDeregister(h MemHandle) error
	// MemHandleSerialize copies h's descriptor bytes into buf. Fails
	// with ErrBufferTooSmall if buf is too small.
	MemHandleSerialize(buf []byte, h MemHandle) (int, error)
	// MemHandleDeserialize allocates a fresh handle (owned by the
	// caller, unattached to any local window) from buf.
	MemHandleDeserialize(buf []byte) (MemHandle, error)
	// MemHandleFree releases a handle obtained from MemHandleDeserialize.
	MemHandleFree(h MemHandle) error

	// Put and Get share the same shape: transfer length bytes between
	// (local handle, localOffset) and (remote handle, remoteOffset) on
	// remote. Put requires the remote handle to be ReadWrite.
	Put(local MemHandle, localOffset uint64, remote MemHandle, remoteOffset uint64, length uint64, remoteAddr Addr) (*Request, error)
	Get(local MemHandle, localOffset uint64, remote MemHandle, remoteOffset uint64, length uint64, remoteAddr Addr) (*Request, error)

	// Wait is also reachable directly on the Request returned by any of
	// the above; Class.Wait exists for callers that only hold the Class.
	Wait(req *Request, timeout time.Duration) (Status, error)
}
