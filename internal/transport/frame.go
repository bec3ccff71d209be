package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// frameHeaderSize is the size of the length prefix (int32 little-endian).
	frameHeaderSize = 4
	// MaxFrameSize bounds a single payload (16 MB).
	MaxFrameSize = 16 << 20
)

var ErrFrameTooLarge = errors.New("frame too large")

// writeFrame writes [4 bytes little-endian length][payload] in one Write so
// frames from concurrent writers never interleave.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w (%d > %d)", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}
	buf := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(int32(len(payload))))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := int32(binary.LittleEndian.Uint32(header[:]))
	if length < 0 {
		return nil, fmt.Errorf("invalid frame length %d", length)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w (%d > %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
