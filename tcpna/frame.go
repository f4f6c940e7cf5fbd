package tcpna

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Wire framing for both the primary and side-channel connections: a
// fixed 12-byte header followed by the payload. A generic tagged
// datagram rather than a single frame kind, so the same framing carries
// ordinary messages (primary channel) and RMA control records (side
// channel).
//
//	0     3   4        8         12
//	┌─────┬───┬────────┬─────────┐
//	│magic│ver│ tag(4) │ len(4)  │
//	└─────┴───┴────────┴─────────┘
const (
	frameMagic0  = 'n'
	frameMagic1  = 'a'
	frameMagic2  = 'f'
	frameVersion = 1
	frameHeader  = 3 + 1 + 4 + 4

	// maxFrameBody bounds a single frame's payload to guard against a
	// corrupt length field wedging a reader on an enormous allocation.
	maxFrameBody = 64 << 20

	// tagControl marks a side-channel frame as carrying a ControlRecord
	// rather than tagged application/RMA data. The side channel is
	// reserved entirely for control/RMA traffic, so no application tag
	// can collide with it.
	tagControl uint32 = 0
)

func writeFrame(w io.Writer, tag uint32, body []byte) error {
	hdr := make([]byte, frameHeader)
	hdr[0], hdr[1], hdr[2] = frameMagic0, frameMagic1, frameMagic2
	hdr[3] = frameVersion
	binary.BigEndian.PutUint32(hdr[4:8], tag)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("tcpna: write frame header: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("tcpna: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	hdr := make([]byte, frameHeader)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	if hdr[0] != frameMagic0 || hdr[1] != frameMagic1 || hdr[2] != frameMagic2 {
		return 0, nil, fmt.Errorf("tcpna: bad frame magic")
	}
	if hdr[3] != frameVersion {
		return 0, nil, fmt.Errorf("tcpna: unsupported frame version %d", hdr[3])
	}
	tag := binary.BigEndian.Uint32(hdr[4:8])
	n := binary.BigEndian.Uint32(hdr[8:12])
	if n > maxFrameBody {
		return 0, nil, fmt.Errorf("tcpna: frame body too large: %d", n)
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}
	return tag, body, nil
}

// handshake pairs two TCP connections (primary and side channel) dialed
// independently by the same client into one logical address, since each
// AddrLookup opens two sockets but the listener accepts them one at a
// time with no other way to tell they belong together.
const (
	markerPrimary byte = 1
	markerSide    byte = 2
	handshakeSize      = 12 + 1 // xid.ID + marker
)

func writeHandshake(c net.Conn, token [12]byte, marker byte) error {
	buf := make([]byte, handshakeSize)
	copy(buf[:12], token[:])
	buf[12] = marker
	_, err := c.Write(buf)
	return err
}

func readHandshake(c net.Conn) (token [12]byte, marker byte, err error) {
	buf := make([]byte, handshakeSize)
	if _, err = io.ReadFull(c, buf); err != nil {
		return
	}
	copy(token[:], buf[:12])
	marker = buf[12]
	return
}
