package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single frame's decoded length; a length prefix
// beyond this is treated as a corrupt stream rather than an allocation of
// attacker-controlled size.
const MaxFrameBytes = 64 << 20

// WriteFrame writes payload length-prefixed as a 4-byte little-endian
// count, followed by the payload itself (spec §4.I "length-prefixed
// (4-byte little-endian)").
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("transport: frame of %d bytes exceeds max %d", len(payload), MaxFrameBytes)
	}
	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(head[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds max %d", n, MaxFrameBytes)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
