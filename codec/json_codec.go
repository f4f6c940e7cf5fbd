package codec

import "encoding/json"

// JSONCodec serializes the envelope with encoding/json. The payloads it
// sees are small by construction — bulk arguments cross as RMA transfers
// after the callee deserializes the handle carried in Payload, so there
// is no large-buffer fast path to worry about here.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
