// Package wire defines the fixed-layout byte encodings exchanged
// between NA peers: the memory-handle descriptor and the RMA
// side-channel control record. Both are tiny, fixed-shape, and
// non-pluggable, so they are framed by hand with encoding/binary the
// same way package protocol frames its header, rather than routed
// through a generic codec.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/xid"
)

// MemHandleSize is the encoded size of a MemHandleDescriptor:
//
//	0        12       20        28
//	┌────────┬────────┬─────────┐
//	│ id(12) │ len(8) │ flags(8)│
//	└────────┴────────┴─────────┘
const MemHandleSize = 12 + 8 + 8

// MemHandleDescriptor is the raw, process-portable image of a
// registered memory region: an opaque minted id, its length, and its
// access flags. Carrying an id instead of a raw base pointer means two
// peers never need to agree on address-space layout — the id is only
// ever interpreted by the registry that minted it.
type MemHandleDescriptor struct {
	ID    xid.ID
	Len   uint64
	Flags uint64
}

// Encode writes d's byte image into buf, which must be at least
// MemHandleSize bytes.
func (d MemHandleDescriptor) Encode(buf []byte) error {
	if len(buf) < MemHandleSize {
		return fmt.Errorf("wire: buffer too small for mem handle: need %d, have %d", MemHandleSize, len(buf))
	}
	copy(buf[0:12], d.ID.Bytes())
	binary.BigEndian.PutUint64(buf[12:20], d.Len)
	binary.BigEndian.PutUint64(buf[20:28], d.Flags)
	return nil
}

// DecodeMemHandle reads a MemHandleDescriptor from buf.
func DecodeMemHandle(buf []byte) (MemHandleDescriptor, error) {
	if len(buf) < MemHandleSize {
		return MemHandleDescriptor{}, fmt.Errorf("wire: buffer too small for mem handle: need %d, have %d", MemHandleSize, len(buf))
	}
	id, err := xid.FromBytes(buf[0:12])
	if err != nil {
		return MemHandleDescriptor{}, fmt.Errorf("wire: invalid mem handle id: %w", err)
	}
	return MemHandleDescriptor{
		ID:    id,
		Len:   binary.BigEndian.Uint64(buf[12:20]),
		Flags: binary.BigEndian.Uint64(buf[20:28]),
	}, nil
}

// ControlOp identifies the operation a ControlRecord instructs the RMA
// service to perform.
type ControlOp byte

const (
	ControlPut ControlOp = 0
	ControlGet ControlOp = 1
	ControlEnd ControlOp = 2
)

// ControlRecordSize is the encoded size of a ControlRecord:
//
//	0        12        20         28    29
//	┌────────┬─────────┬──────────┬─────┐
//	│ id(12) │ disp(8) │ count(8) │op(1)│
//	└────────┴─────────┴──────────┴─────┘
const ControlRecordSize = 12 + 8 + 8 + 1

// ControlRecord is the side-channel message instructing a peer's RMA
// service which registered region to act on, and how.
type ControlRecord struct {
	ID    xid.ID
	Disp  uint64
	Count uint64
	Op    ControlOp
}

// Encode writes r's byte image into buf, which must be at least
// ControlRecordSize bytes.
func (r ControlRecord) Encode(buf []byte) error {
	if len(buf) < ControlRecordSize {
		return fmt.Errorf("wire: buffer too small for control record: need %d, have %d", ControlRecordSize, len(buf))
	}
	copy(buf[0:12], r.ID.Bytes())
	binary.BigEndian.PutUint64(buf[12:20], r.Disp)
	binary.BigEndian.PutUint64(buf[20:28], r.Count)
	buf[28] = byte(r.Op)
	return nil
}

// DecodeControlRecord reads a ControlRecord from buf.
func DecodeControlRecord(buf []byte) (ControlRecord, error) {
	if len(buf) < ControlRecordSize {
		return ControlRecord{}, fmt.Errorf("wire: buffer too small for control record: need %d, have %d", ControlRecordSize, len(buf))
	}
	id, err := xid.FromBytes(buf[0:12])
	if err != nil {
		return ControlRecord{}, fmt.Errorf("wire: invalid control record id: %w", err)
	}
	return ControlRecord{
		ID:    id,
		Disp:  binary.BigEndian.Uint64(buf[12:20]),
		Count: binary.BigEndian.Uint64(buf[20:28]),
		Op:    ControlOp(buf[28]),
	}, nil
}
