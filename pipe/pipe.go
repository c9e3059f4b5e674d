// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipe implements bounded unidirectional byte pipes with backpressure,
// cooperative cancellation, and completion propagation.
//
// Each [*Pipe] has exactly one producer, driving its [*Writer], and one
// consumer, driving its [*Reader]. The producer stages bytes with
// [*Writer.GetMemory] and [*Writer.Advance] (or [*Writer.Write]) and
// publishes them with [*Writer.Flush]. Flush suspends while the amount of
// unconsumed bytes is above the pause threshold. The consumer obtains a
// view of the published bytes with [*Reader.Read] and reports how much it
// consumed and examined with [*Reader.AdvanceTo].
//
// Both sides may complete, optionally with an error. Completion is
// monotonic: once completed, a side stays completed. A pending read or
// flush may be cancelled from any goroutine, in which case it returns a
// result with IsCanceled set rather than an error.
//
// Memory comes from a [*pool.BufferPool] and is returned to it as soon
// as the consumer advances past it, or once both sides complete.
package pipe

import (
	"context"
	"errors"
	"sync"

	"github.com/bassosimone/runtimex"
	pool "github.com/libp2p/go-buffer-pool"
)

// ErrReaderCompleted is returned when reading from a completed [*Reader].
var ErrReaderCompleted = errors.New("pipe: reader completed")

// ErrWriterCompleted is returned when writing to a completed [*Writer].
var ErrWriterCompleted = errors.New("pipe: writer completed")

const (
	defaultPauseWriterThreshold  = 64 << 10
	defaultResumeWriterThreshold = 32 << 10
	defaultMinimumSegmentSize    = 4 << 10
)

// Options configures a [*Pipe].
type Options struct {
	// PauseWriterThreshold is the number of unconsumed bytes at which
	// [*Writer.Flush] starts suspending. Zero disables backpressure.
	PauseWriterThreshold int

	// ResumeWriterThreshold is the number of unconsumed bytes at or
	// below which a suspended [*Writer.Flush] resumes.
	ResumeWriterThreshold int

	// MinimumSegmentSize is the smallest segment allocated by
	// [*Writer.GetMemory].
	MinimumSegmentSize int

	// Pool is the buffer pool segments are taken from.
	Pool *pool.BufferPool
}

// DefaultOptions returns the default [Options].
func DefaultOptions() Options {
	return Options{
		PauseWriterThreshold:  defaultPauseWriterThreshold,
		ResumeWriterThreshold: defaultResumeWriterThreshold,
		MinimumSegmentSize:    defaultMinimumSegmentSize,
		Pool:                  pool.GlobalPool,
	}
}

// ReadResult is the result of [*Reader.Read].
type ReadResult struct {
	// Buffer contains the published bytes not consumed yet.
	Buffer Sequence

	// IsCanceled is true when the read was cancelled.
	IsCanceled bool

	// IsCompleted is true when the writer completed and no more
	// bytes will be published after Buffer.
	IsCompleted bool
}

// FlushResult is the result of [*Writer.Flush].
type FlushResult struct {
	// IsCanceled is true when the flush was cancelled.
	IsCanceled bool

	// IsCompleted is true when the reader completed and is
	// not going to consume any more bytes.
	IsCompleted bool
}

// segment is a pooled buffer. Bytes in [start, end) are published and
// unconsumed; bytes in [end, written) are staged but not flushed yet.
type segment struct {
	buf     []byte
	start   int
	end     int
	written int
}

// Pipe is a single-producer single-consumer byte pipe.
//
// Construct using [New].
type Pipe struct {
	mu   sync.Mutex
	opts Options
	segs []*segment

	// length counts published unconsumed bytes; examined counts how many
	// of them the reader has already looked at; unflushed counts staged bytes.
	length    int
	examined  int
	unflushed int

	readCanceled  bool
	flushCanceled bool
	readerDone    bool
	writerDone    bool
	readerErr     error
	writerErr     error

	// readSignal and flushSignal are closed and replaced to wake up
	// a suspended reader or writer.
	readSignal  chan struct{}
	flushSignal chan struct{}

	reader Reader
	writer Writer
}

// New creates a new [*Pipe] using the given [Options].
//
// Zero-valued Pool and MinimumSegmentSize are replaced with defaults.
func New(opts Options) *Pipe {
	if opts.Pool == nil {
		opts.Pool = pool.GlobalPool
	}
	if opts.MinimumSegmentSize <= 0 {
		opts.MinimumSegmentSize = defaultMinimumSegmentSize
	}
	runtimex.Assert(opts.PauseWriterThreshold >= 0 && opts.ResumeWriterThreshold >= 0)
	if opts.ResumeWriterThreshold > opts.PauseWriterThreshold {
		opts.ResumeWriterThreshold = opts.PauseWriterThreshold
	}
	p := &Pipe{
		opts:        opts,
		readSignal:  make(chan struct{}),
		flushSignal: make(chan struct{}),
	}
	p.reader.p = p
	p.writer.p = p
	return p
}

// Reader returns the consumer side of the pipe.
func (p *Pipe) Reader() *Reader {
	return &p.reader
}

// Writer returns the producer side of the pipe.
func (p *Pipe) Writer() *Writer {
	return &p.writer
}

func (p *Pipe) wakeReaderLocked() {
	close(p.readSignal)
	p.readSignal = make(chan struct{})
}

func (p *Pipe) wakeWriterLocked() {
	close(p.flushSignal)
	p.flushSignal = make(chan struct{})
}

// commitLocked publishes all staged bytes.
func (p *Pipe) commitLocked() {
	if p.unflushed == 0 {
		return
	}
	for _, seg := range p.segs {
		seg.end = seg.written
	}
	p.length += p.unflushed
	p.unflushed = 0
	p.wakeReaderLocked()
}

// releaseLocked returns segments to the pool. When keepTail is true the last
// segment survives because the writer may still be writing into it.
func (p *Pipe) releaseLocked(keepTail bool) {
	var tail *segment
	if keepTail && len(p.segs) > 0 {
		tail = p.segs[len(p.segs)-1]
		p.segs = p.segs[:len(p.segs)-1]
	}
	for _, seg := range p.segs {
		p.opts.Pool.Put(seg.buf)
	}
	p.segs = nil
	if tail != nil {
		tail.start, tail.end = tail.written, tail.written
		p.segs = append(p.segs, tail)
	}
	p.length, p.examined, p.unflushed = 0, 0, 0
}

// releasableLocked returns whether a drained segment can go back to the pool.
func (p *Pipe) releasableLocked(seg *segment) bool {
	if seg.start != seg.written {
		return false
	}
	isTail := seg == p.segs[len(p.segs)-1]
	return !isTail || seg.written == len(seg.buf)
}

func (p *Pipe) viewLocked() Sequence {
	var seq Sequence
	for _, seg := range p.segs {
		if seg.end > seg.start {
			seq = append(seq, seg.buf[seg.start:seg.end])
		}
	}
	return seq
}

func (p *Pipe) tryReadLocked() (result ReadResult, ok bool, err error) {
	switch {
	case p.readerDone:
		return ReadResult{}, true, ErrReaderCompleted

	case p.readCanceled:
		p.readCanceled = false
		result = ReadResult{Buffer: p.viewLocked(), IsCanceled: true, IsCompleted: p.writerDone}
		return result, true, nil

	case p.length > p.examined:
		return ReadResult{Buffer: p.viewLocked(), IsCompleted: p.writerDone}, true, nil

	case p.writerDone:
		// Buffered bytes are always delivered before the completion error.
		if p.length == 0 && p.writerErr != nil {
			return ReadResult{IsCompleted: true}, true, p.writerErr
		}
		return ReadResult{Buffer: p.viewLocked(), IsCompleted: true}, true, nil

	default:
		return ReadResult{}, false, nil
	}
}

// Reader is the consumer side of a [*Pipe].
type Reader struct {
	p *Pipe
}

// Read returns the published bytes not consumed yet, suspending until new
// bytes are available, the writer completes, or the read is cancelled.
//
// When the previous [*Reader.AdvanceTo] examined every available byte,
// Read waits for bytes published after that call.
//
// A done context is reported as a result with IsCanceled set, not as an error.
// The error is non-nil only when the writer completed with an error and
// every published byte has been consumed, or when the reader is completed.
func (r *Reader) Read(ctx context.Context) (ReadResult, error) {
	p := r.p
	p.mu.Lock()
	for {
		if result, ok, err := p.tryReadLocked(); ok {
			p.mu.Unlock()
			return result, err
		}
		signal := p.readSignal
		p.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return ReadResult{IsCanceled: true}, nil
		}

		p.mu.Lock()
	}
}

// AdvanceTo reports that consumed bytes from the start of the last returned
// buffer are no longer needed and that examined bytes have been looked at.
//
// Unconsumed bytes remain available to the next [*Reader.Read]. The buffer
// returned by the last read must not be used after calling this method.
func (r *Reader) AdvanceTo(consumed, examined int) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerDone {
		return
	}
	runtimex.Assert(consumed >= 0 && consumed <= examined && examined <= p.length)

	remaining := consumed
	for len(p.segs) > 0 {
		seg := p.segs[0]
		n := min(seg.end-seg.start, remaining)
		seg.start += n
		remaining -= n
		if seg.start < seg.end || !p.releasableLocked(seg) {
			break
		}
		p.opts.Pool.Put(seg.buf)
		p.segs[0] = nil
		p.segs = p.segs[1:]
	}
	runtimex.Assert(remaining == 0)

	p.length -= consumed
	p.examined = examined - consumed
	if consumed > 0 {
		p.wakeWriterLocked()
	}
}

// CancelPendingRead makes the pending [*Reader.Read], or the next one if
// none is pending, return a result with IsCanceled set.
func (r *Reader) CancelPendingRead() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readCanceled = true
	p.wakeReaderLocked()
}

// Complete marks the reader as completed. The writer observes completion
// on its next flush, together with err when not nil.
//
// Calling Complete more than once has no effect.
func (r *Reader) Complete(err error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerDone {
		return
	}
	p.readerDone = true
	p.readerErr = err
	p.releaseLocked(!p.writerDone)
	p.wakeWriterLocked()
}

// Writer is the producer side of a [*Pipe].
type Writer struct {
	p *Pipe
}

// GetMemory returns a writable buffer of at least sizeHint bytes (at least
// one byte when sizeHint is not positive). Bytes written into it become
// staged once the producer calls [*Writer.Advance].
//
// The returned memory is invalidated by the next call to GetMemory.
// Calling GetMemory on a completed writer is a programming error.
func (w *Writer) GetMemory(sizeHint int) []byte {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	runtimex.Assert(!p.writerDone)

	sizeHint = max(sizeHint, 1)
	if n := len(p.segs); n > 0 {
		tail := p.segs[n-1]
		if len(tail.buf)-tail.written >= sizeHint {
			return tail.buf[tail.written:]
		}
	}

	buf := p.opts.Pool.Get(max(sizeHint, p.opts.MinimumSegmentSize))
	buf = buf[:cap(buf)]
	p.segs = append(p.segs, &segment{buf: buf})
	return buf
}

// Advance stages n bytes written into the memory returned by the
// last call to [*Writer.GetMemory].
func (w *Writer) Advance(n int) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	runtimex.Assert(!p.writerDone)
	if n == 0 {
		return
	}
	runtimex.Assert(n > 0 && len(p.segs) > 0)
	tail := p.segs[len(p.segs)-1]
	runtimex.Assert(tail.written+n <= len(tail.buf))
	tail.written += n
	p.unflushed += n
}

// Write copies data into pipe memory and stages it. It does not flush.
func (w *Writer) Write(data []byte) (int, error) {
	p := w.p
	p.mu.Lock()
	done := p.writerDone
	p.mu.Unlock()
	if done {
		return 0, ErrWriterCompleted
	}

	var total int
	for len(data) > 0 {
		mem := w.GetMemory(1)
		n := copy(mem, data)
		w.Advance(n)
		data = data[n:]
		total += n
	}
	return total, nil
}

// Flush publishes the staged bytes and, when the reader is lagging behind,
// suspends until it catches up.
//
// The flush returns IsCanceled after [*Writer.CancelPendingFlush] or when
// the context is done, and IsCompleted once the reader has completed, in
// which case the error is the one the reader completed with.
func (w *Writer) Flush(ctx context.Context) (FlushResult, error) {
	p := w.p
	p.mu.Lock()
	if p.writerDone {
		p.mu.Unlock()
		return FlushResult{}, ErrWriterCompleted
	}
	p.commitLocked()

	threshold := p.opts.PauseWriterThreshold
	for {
		if p.flushCanceled {
			p.flushCanceled = false
			p.mu.Unlock()
			return FlushResult{IsCanceled: true}, nil
		}
		if p.readerDone {
			p.releaseLocked(true)
			err := p.readerErr
			p.mu.Unlock()
			return FlushResult{IsCompleted: true}, err
		}
		if threshold <= 0 || p.length < threshold {
			p.mu.Unlock()
			return FlushResult{}, nil
		}

		// Once paused, only resume after draining to the resume threshold.
		threshold = p.opts.ResumeWriterThreshold + 1
		signal := p.flushSignal
		p.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return FlushResult{IsCanceled: true}, nil
		}

		p.mu.Lock()
	}
}

// CancelPendingFlush makes the pending [*Writer.Flush], or the next one if
// none is pending, return a result with IsCanceled set.
func (w *Writer) CancelPendingFlush() {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushCanceled = true
	p.wakeWriterLocked()
}

// Complete publishes any staged bytes and marks the writer as completed.
// The reader observes completion after consuming the published bytes,
// together with err when not nil.
//
// Calling Complete more than once has no effect.
func (w *Writer) Complete(err error) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerDone {
		return
	}
	p.commitLocked()
	p.writerDone = true
	p.writerErr = err
	p.wakeReaderLocked()
	p.wakeWriterLocked()
	if p.readerDone {
		p.releaseLocked(false)
	}
}
