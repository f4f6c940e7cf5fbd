package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"na-rpc/message"
)

// BinaryCodec lays an RPCMessage out as three length-prefixed fields:
//
//	┌──────────────┬────────┬───────────────┬─────────┬───────────┬───────┐
//	│ MethodLen(2) │ Method │ PayloadLen(4) │ Payload │ ErrLen(2) │ Error │
//	└──────────────┴────────┴───────────────┴─────────┴───────────┴───────┘
//
// The payload bytes inside are whatever the caller serialized (JSON for
// ordinary args, a raw memory-handle image for bulk calls); only the
// envelope framing is binary. That alone avoids the field-name and
// escaping overhead JSON pays on every message.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *RPCMessage")
	}

	// One allocation sized up front.
	buf := make([]byte, 2+len(msg.ServiceMethod)+4+len(msg.Payload)+2+len(msg.Error))

	off := 0
	binary.BigEndian.PutUint16(buf[off:], uint16(len(msg.ServiceMethod)))
	off += 2
	off += copy(buf[off:], msg.ServiceMethod)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(msg.Payload)))
	off += 4
	off += copy(buf[off:], msg.Payload)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(msg.Error)))
	off += 2
	copy(buf[off:], msg.Error)

	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *RPCMessage")
	}

	next := func(n int) ([]byte, error) {
		if len(data) < n {
			return nil, fmt.Errorf("BinaryCodec: truncated message, need %d bytes, have %d", n, len(data))
		}
		field := data[:n]
		data = data[n:]
		return field, nil
	}

	f, err := next(2)
	if err != nil {
		return err
	}
	f, err = next(int(binary.BigEndian.Uint16(f)))
	if err != nil {
		return err
	}
	msg.ServiceMethod = string(f)

	f, err = next(4)
	if err != nil {
		return err
	}
	f, err = next(int(binary.BigEndian.Uint32(f)))
	if err != nil {
		return err
	}
	msg.Payload = append([]byte(nil), f...)

	f, err = next(2)
	if err != nil {
		return err
	}
	f, err = next(int(binary.BigEndian.Uint16(f)))
	if err != nil {
		return err
	}
	msg.Error = string(f)

	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
