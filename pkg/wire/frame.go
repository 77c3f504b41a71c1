package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame flags.
const (
	FlagMessage byte = 0x00
	FlagError   byte = 0x80
)

// FrameHeaderLen is the size of the prefix written before every payload:
// one flag byte followed by a big-endian uint32 length.
const FrameHeaderLen = 5

// DefaultMaxFrameSize bounds payloads accepted by ReadFrame when the caller
// passes a non-positive limit.
const DefaultMaxFrameSize = 4 << 20

// WriteFrame writes payload prefixed with its flag and length.
func WriteFrame(w io.Writer, flag byte, payload []byte) error {
	var hdr [FrameHeaderLen]byte
	hdr[0] = flag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// AppendFrame is the allocation friendly form of WriteFrame.
func AppendFrame(b []byte, flag byte, payload []byte) []byte {
	b = append(b, flag)
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

// ReadFrame reads one frame from r. Payloads larger than limit are rejected
// without being read.
func ReadFrame(r io.Reader, limit int) (byte, []byte, error) {
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: frame header: %v", ErrMalformed, err)
	}
	flag := hdr[0]
	if flag != FlagMessage && flag != FlagError {
		return 0, nil, fmt.Errorf("%w: unknown frame flag %#x", ErrMalformed, flag)
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if uint64(n) > uint64(limit) {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes exceeds limit of %d", ErrMalformed, n, limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("%w: frame payload: %v", ErrMalformed, err)
	}
	return flag, payload, nil
}
