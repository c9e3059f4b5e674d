// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// maxFrameHeaderSize is the largest supported [Config.FrameHeaderSize].
const maxFrameHeaderSize = 4

// maxChunkSize returns the largest payload the receive pump captures
// at once given the header width and the receive buffer size.
func maxChunkSize(width, bufferSize int) int {
	if width == 0 || width >= maxFrameHeaderSize {
		// A 4-byte header exceeds any sensible buffer size.
		return bufferSize
	}
	return min(bufferSize, 1<<(8*width)-1)
}

// putChunkLength writes n into header using network byte order.
func putChunkLength(header []byte, n int) {
	var scratch [maxFrameHeaderSize]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(n))
	copy(header, scratch[maxFrameHeaderSize-len(header):])
}

// receivePump copies bytes from the socket into the inbound pipe until the
// peer closes its write side, the application stops reading, ctx is done,
// or an I/O error occurs.
//
// Each captured chunk is preceded by [Config.FrameHeaderSize] reserved bytes
// holding the chunk length. The inbound writer is completed on every exit
// path, carrying the returned error if any.
func (t *Transport) receivePump(ctx context.Context) (err error) {
	output := t.pumps.Output
	width := t.cfg.FrameHeaderSize
	limit := maxChunkSize(width, t.cfg.ReceiveBufferSize)

	t0 := t.cfg.TimeNow()
	var count int64
	t.logger.Info(
		"receivePumpStart",
		slog.Int("frameHeaderSize", width),
		slog.Int("ioBufferSize", limit),
		slog.Time("t", t0),
	)
	defer func() {
		output.Complete(err)
		t.logger.Info(
			"receivePumpDone",
			slog.Any("err", err),
			slog.String("errClass", t.cfg.ErrClassifier.Classify(err)),
			slog.Int64("ioBytesCount", count),
			slog.Time("t0", t0),
			slog.Time("t", t.cfg.TimeNow()),
		)
	}()

	stop := interruptOnDone(ctx, t.conn.SetReadDeadline)
	defer stop()

	for {
		mem := output.GetMemory(width + limit)
		payload := mem[width:]
		if len(payload) > limit {
			payload = payload[:limit]
		}

		n, rerr := t.conn.Read(payload)
		if n > 0 {
			putChunkLength(mem[:width], n)
			output.Advance(width + n)
			count += int64(n)
			t.metrics.bytesReceived.Add(n)

			// A canceled or completed flush means the application stopped reading.
			result, ferr := output.Flush(ctx)
			if ferr != nil || result.IsCanceled || result.IsCompleted {
				return nil
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return t.pumpError(ctx, rerr)
		}
	}
}

// pumpError maps a socket error to the error a pump returns.
//
// Errors caused by cancellation or following an abort are not failures.
func (t *Transport) pumpError(ctx context.Context, err error) error {
	if t.aborted.Load() || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransportIO, err)
}
