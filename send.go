// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bassosimone/duplexsock/pipe"
)

// sendPump copies bytes from the outbound pipe to the socket until the
// application completes its output, the read is cancelled, ctx is done,
// or a write fails.
//
// When the application completes its output with an error, the pump returns
// that error wrapped with [ErrApplicationOutput] and leaves the socket alone.
// When it completes without error, the pump half-closes the socket so that
// the peer observes the end of data. The outbound reader is completed on
// every exit path, carrying the returned error if any.
func (t *Transport) sendPump(ctx context.Context) (err error) {
	input := t.pumps.Input

	t0 := t.cfg.TimeNow()
	var count int64
	t.logger.Info("sendPumpStart", slog.Time("t", t0))
	defer func() {
		input.Complete(err)
		t.logger.Info(
			"sendPumpDone",
			slog.Any("err", err),
			slog.String("errClass", t.cfg.ErrClassifier.Classify(err)),
			slog.Int64("ioBytesCount", count),
			slog.Time("t0", t0),
			slog.Time("t", t.cfg.TimeNow()),
		)
	}()

	stop := interruptOnDone(ctx, t.conn.SetWriteDeadline)
	defer stop()

	for {
		result, rerr := input.Read(ctx)
		if rerr != nil {
			// The application completed its output with an error.
			return fmt.Errorf("%w: %w", ErrApplicationOutput, rerr)
		}

		size := result.Buffer.Len()
		var werr error
		if size > 0 && !result.IsCanceled {
			var n int64
			n, werr = sendSegments(t.conn, result.Buffer)
			count += n
			t.metrics.bytesSent.Add(int(n))
		}

		// Release the buffer on every iteration, including those ending the loop.
		input.AdvanceTo(size, size)

		switch {
		case result.IsCanceled:
			return nil

		case werr != nil:
			return t.pumpError(ctx, werr)

		case size == 0 && result.IsCompleted:
			t.halfClose()
			return nil
		}
	}
}

// sendSegments writes each segment of seq to w in order, one write per
// segment, and returns the number of bytes written. It stops at the first
// failing write.
func sendSegments(w io.Writer, seq pipe.Sequence) (int64, error) {
	if seq.IsSingleSegment() {
		n, err := w.Write(seq[0])
		return int64(n), err
	}

	var total int64
	var prev []byte
	for _, next := range seq {
		if prev != nil {
			n, err := w.Write(prev)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
		prev = next
	}
	if prev != nil {
		n, err := w.Write(prev)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// halfClose shuts down the writing side of the socket unless aborted.
func (t *Transport) halfClose() {
	if t.aborted.Load() {
		return
	}
	if cw, ok := findConn[interface{ CloseWrite() error }](t.conn); ok {
		if err := cw.CloseWrite(); err != nil && !errors.Is(err, errors.ErrUnsupported) {
			t.logger.Info("closeWriteFailed", slog.Any("err", err))
		}
	}
}
