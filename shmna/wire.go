package shmna

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"na-rpc/na"
)

// maxPathLen bounds the NUL-padded shared-memory path carried in a
// serialized descriptor, mirroring tcpna's MaxPortName-style fixed-size
// string field.
const maxPathLen = 256

// descriptorSize is id(12) + len(8) + flags(8) + path(maxPathLen).
const descriptorSize = 12 + 8 + 8 + maxPathLen

func encodeDescriptor(buf []byte, h *memHandle) (int, error) {
	if len(buf) < descriptorSize {
		return 0, fmt.Errorf("shmna: buffer too small for descriptor: need %d, have %d", descriptorSize, len(buf))
	}
	if len(h.path) >= maxPathLen {
		return 0, fmt.Errorf("shmna: path %q exceeds maxPathLen", h.path)
	}
	copy(buf[0:12], h.id.Bytes())
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.length))
	binary.BigEndian.PutUint64(buf[20:28], uint64(h.flags))
	pathField := buf[28:descriptorSize]
	for i := range pathField {
		pathField[i] = 0
	}
	copy(pathField, h.path)
	return descriptorSize, nil
}

func decodeDescriptor(buf []byte) (*memHandle, error) {
	if len(buf) < descriptorSize {
		return nil, fmt.Errorf("shmna: buffer too small for descriptor: need %d, have %d", descriptorSize, len(buf))
	}
	id, err := xid.FromBytes(buf[0:12])
	if err != nil {
		return nil, fmt.Errorf("shmna: invalid descriptor id: %w", err)
	}
	length := binary.BigEndian.Uint64(buf[12:20])
	flags := binary.BigEndian.Uint64(buf[20:28])
	path := string(buf[28:descriptorSize])
	if i := strings.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	return &memHandle{
		id:     id,
		path:   path,
		length: int(length),
		flags:  na.AccessFlag(flags),
	}, nil
}
