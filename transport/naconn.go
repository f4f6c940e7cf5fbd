package transport

import (
	"time"

	"na-rpc/na"
)

// dataTag is the NA tag used for the RPC byte stream. protocol.Encode
// writes a frame as two separate Writes (header, then body) and
// protocol.Decode reads in two separate calls of arbitrary sizes, so
// NAConn bridges NA's message-oriented Send/Recv to the stream-oriented
// io.Reader/io.Writer those functions expect; neither package needs to
// know its connection runs over na.Class instead of a raw net.Conn.
const dataTag na.Tag = 1

// WaitForever is passed to Request.Wait to mean "block until done": any
// nonzero duration blocks unconditionally (only timeout==0 is a
// non-blocking poll), so the value itself is immaterial.
const WaitForever = time.Hour

// recvBufSize bounds a single NA message; protocol frames (header +
// JSON/binary body) are expected to comfortably fit.
const recvBufSize = 4 << 20

// NAConn adapts an na.Class/na.Addr pair into an io.ReadWriteCloser:
// Write sends one NA message per call, Read serves bytes out of an
// internal queue fed by successive blocking Recv calls, concatenating
// message boundaries transparently the way a TCP stream already does.
type NAConn struct {
	cls  na.Class
	addr na.Addr

	readBuf []byte
	readPos int
}

// NewNAConn wraps cls/addr for RPC byte-stream traffic tagged dataTag.
func NewNAConn(cls na.Class, addr na.Addr) *NAConn {
	return &NAConn{cls: cls, addr: addr}
}

// Class returns the na.Class this connection was built over, letting a
// bulk-argument handler that needs to issue its own Put/Get reach the
// substrate directly.
func (c *NAConn) Class() na.Class { return c.cls }

// Addr returns the peer address this connection talks to: on the server
// side, the reference Addr minted by RecvUnexpected for this caller — the
// same Addr a bulk-argument handler must pass as remoteAddr to Get() to
// pull the caller's registered memory.
func (c *NAConn) Addr() na.Addr { return c.addr }

func (c *NAConn) Write(p []byte) (int, error) {
	req, err := c.cls.Send(p, c.addr, dataTag)
	if err != nil {
		return 0, err
	}
	if _, err := req.Wait(WaitForever); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *NAConn) Read(p []byte) (int, error) {
	for c.readPos >= len(c.readBuf) {
		buf := make([]byte, recvBufSize)
		req, err := c.cls.Recv(buf, c.addr, dataTag)
		if err != nil {
			return 0, err
		}
		status, err := req.Wait(WaitForever)
		if err != nil {
			return 0, err
		}
		c.readBuf = buf[:status.Count]
		c.readPos = 0
	}
	n := copy(p, c.readBuf[c.readPos:])
	c.readPos += n
	return n, nil
}

// PrimeRead seeds the read buffer with bytes already consumed by a
// server-side RecvUnexpected probe, so the first protocol.Decode on a
// freshly discovered peer doesn't lose the bytes that discovered it.
func (c *NAConn) PrimeRead(b []byte) {
	c.readBuf = b
	c.readPos = 0
}

// Close frees the underlying address. A reference address (server side,
// minted by RecvUnexpected) is left for Finalize to tear down; a
// looked-up address (client side) disconnects immediately.
func (c *NAConn) Close() error {
	return c.cls.AddrFree(c.addr)
}
