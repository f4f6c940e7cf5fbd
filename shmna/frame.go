package shmna

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame header for shmna's two-sided messaging path: tag(4) + len(4).
// shmna never needs a side channel (RMA bypasses messaging entirely via
// direct mmap), so unlike tcpna's frame there is no magic/version
// preamble to negotiate — both ends of a Unix socket pair are always the
// same build.
const frameHeader = 8

const maxFrameBody = 64 << 20

func writeFrame(w io.Writer, tag uint32, body []byte) error {
	hdr := make([]byte, frameHeader)
	binary.BigEndian.PutUint32(hdr[0:4], tag)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(body)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("shmna: write frame header: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	hdr := make([]byte, frameHeader)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	tag := binary.BigEndian.Uint32(hdr[0:4])
	n := binary.BigEndian.Uint32(hdr[4:8])
	if n > maxFrameBody {
		return 0, nil, fmt.Errorf("shmna: frame body too large: %d", n)
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}
	return tag, body, nil
}
