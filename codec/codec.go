// Package codec serializes the RPCMessage envelope. It sits entirely
// above na.Class: only the small in-band envelope passes through a codec,
// never the bulk bytes that travel out-of-band over RMA.
//
// Two formats are provided behind one interface:
//   - JSONCodec:   readable on the wire, handy when debugging a capture
//   - BinaryCodec: length-prefixed fields, much cheaper to encode
//
// A frame's header records which codec produced its body, so each side
// decodes with whatever the sender chose.
package codec

// CodecType is the one-byte format identifier carried in the frame header.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec converts an RPCMessage to wire bytes and back. New formats plug
// in by implementing these three methods; no other layer changes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec maps a CodecType to its implementation. Unknown values fall
// back to the binary codec rather than returning nil.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}
	return &BinaryCodec{}
}
