// Package protocol frames the RPC byte stream: a fixed 14-byte header
// carrying codec, message type, sequence number, and body length, then
// exactly that many body bytes. The length field is what turns a byte
// stream (TCP, or an NAConn concatenating NA messages) back into
// discrete messages; the magic prefix rejects strangers that dial the
// port with some other protocol.
//
// Frame layout:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...   │
//	│ mrp  │01│  │  │ uint32  │ uint32  │ bodyLen bytes │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 14
)

// MsgType distinguishes what a frame carries.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // keep-alive probe, no body
)

// Codec identifiers, duplicated from the codec package so protocol does
// not import it (codec sits above protocol in the layering).
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header is the decoded form of the fixed frame header. Seq is the
// multiplexing key: a response's Seq names the request it answers.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Seq       uint32
	BodyLen   uint32
}

// Encode writes one complete frame. Callers sharing a writer across
// goroutines must serialize Encode calls themselves, or two frames'
// bytes interleave on the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1], buf[2] = MagicNumber, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// Decode reads one complete frame, validating every header field before
// trusting the length. io.ReadFull on both reads means a short read is
// an error, never a truncated frame handed back as whole.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := headerBuf[5]
	if msgType > byte(MsgTypeHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	h := &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		Seq:       binary.BigEndian.Uint32(headerBuf[6:10]),
		BodyLen:   binary.BigEndian.Uint32(headerBuf[10:14]),
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
