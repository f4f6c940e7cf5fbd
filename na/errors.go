// Package na defines the stable Network Abstraction contract consumed by
// the RPC layer: addressable peers, tagged send/recv, memory registration,
// and RMA put/get, over whichever substrate a naclass.Backend selects.
package na

import "fmt"

// ErrKind enumerates the distinct failure behaviors callers must
// distinguish. It is not a 1:1 mirror of every possible substrate error —
// only the kinds the RPC layer needs to branch on.
type ErrKind int

const (
	// ErrInitFailure means substrate init or port open failed; fatal to
	// the process.
	ErrInitFailure ErrKind = iota
	// ErrThreadingInsufficient means the emulated path could not get the
	// concurrency guarantee it needs. No current backend produces it —
	// goroutines give every substrate safe concurrent entry — but
	// callers ported from substrates with thread-level negotiation
	// still branch on it.
	ErrThreadingInsufficient
	// ErrConnect means AddrLookup could not reach the named peer.
	ErrConnect
	// ErrBufferTooSmall means a serialize/deserialize/unexpected-recv
	// buffer was insufficient. No side effects occurred.
	ErrBufferTooSmall
	// ErrPermission means a PUT targeted a non-writable remote handle.
	// No side effects occurred.
	ErrPermission
	// ErrNullArgument means a required argument was nil/zero.
	ErrNullArgument
	// ErrDoubleFree means a handle or address was freed twice.
	ErrDoubleFree
	// ErrSubstrate means the underlying transport returned failure; the
	// operation's own allocations (if any) are released before return.
	ErrSubstrate
)

func (k ErrKind) String() string {
	switch k {
	case ErrInitFailure:
		return "INIT_FAILURE"
	case ErrThreadingInsufficient:
		return "THREADING_INSUFFICIENT"
	case ErrConnect:
		return "CONNECT_FAILURE"
	case ErrBufferTooSmall:
		return "BUFFER_TOO_SMALL"
	case ErrPermission:
		return "PERMISSION"
	case ErrNullArgument:
		return "NULL_ARGUMENT"
	case ErrDoubleFree:
		return "DOUBLE_FREE"
	case ErrSubstrate:
		return "SUBSTRATE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the typed error every na operation returns on failure.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("na: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("na: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error, optionally wrapping a lower-level cause.
func NewError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
