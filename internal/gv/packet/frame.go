package packet

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single TCP-framed packet; well beyond anything the
// CORE's packet types produce, it exists purely to reject a corrupt or
// hostile length prefix instead of trying to allocate on it.
const maxFrameSize = 64 << 20

// WriteFrame writes payload to w prefixed with its 4-byte little-endian
// length, the framing every GrapeVine TCP packet uses (ELP packets, being
// UDP datagrams, aren't framed this way).
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("packet: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("packet: writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("packet: frame size %d exceeds maximum %d", size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("packet: reading frame payload: %w", err)
	}
	return payload, nil
}
