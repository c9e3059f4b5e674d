// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bassosimone/duplexsock/pipe"
)

// frameLengthSize is the size of the length prefix of a frame.
const frameLengthSize = 3

// MaxFrameSize is the largest payload a 24-bit length prefix can describe.
const MaxFrameSize = 1<<(8*frameLengthSize) - 1

var (
	// ErrFrameTooLarge indicates that a payload exceeds [MaxFrameSize].
	ErrFrameTooLarge = errors.New("duplexsock: frame exceeds maximum size")

	// ErrReadCanceled indicates that [ReadFrame] observed a cancelled read.
	ErrReadCanceled = errors.New("duplexsock: read canceled")
)

// WriteFrame stages payload into w preceded by its 24-bit big-endian length.
//
// The caller is responsible for calling [*pipe.Writer.Flush].
func WriteFrame(w *pipe.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var header [frameLengthSize]byte
	putChunkLength(header[:], len(payload))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads the next length-prefixed frame from r and returns a copy
// of its payload.
//
// It returns [io.EOF] when the writer completed at a frame boundary,
// [io.ErrUnexpectedEOF] when it completed in the middle of a frame, and
// [ErrReadCanceled] when the read was cancelled (including when ctx is done).
// A cancelled read leaves any partial frame buffered for the next call.
func ReadFrame(ctx context.Context, r *pipe.Reader) ([]byte, error) {
	for {
		result, err := r.Read(ctx)
		if err != nil {
			return nil, err
		}
		buf := result.Buffer
		available := buf.Len()

		if available >= frameLengthSize {
			var header [frameLengthSize]byte
			buf.CopyTo(header[:])
			size := int(header[0])<<16 | int(header[1])<<8 | int(header[2])
			if end := frameLengthSize + size; available >= end {
				payload := buf.Slice(frameLengthSize, end).Bytes()
				r.AdvanceTo(end, end)
				return payload, nil
			}
		}

		switch {
		case result.IsCanceled:
			r.AdvanceTo(0, 0)
			return nil, ErrReadCanceled

		case result.IsCompleted:
			r.AdvanceTo(available, available)
			if available == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF

		default:
			// Wait for the rest of the frame.
			r.AdvanceTo(0, available)
		}
	}
}
