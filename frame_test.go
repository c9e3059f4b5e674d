// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"io"
	"testing"

	"github.com/bassosimone/duplexsock/pipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WriteFrame stages a 24-bit big-endian length followed by the payload.
func TestWriteFrame(t *testing.T) {
	p := pipe.New(pipe.DefaultOptions())

	require.NoError(t, WriteFrame(p.Writer(), []byte("hello")))
	require.NoError(t, WriteFrame(p.Writer(), nil))
	p.Writer().Complete(nil)

	data, err := readAll(context.Background(), p.Reader())
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0}, data)
}

// WriteFrame rejects payloads that do not fit the length prefix.
func TestWriteFrameTooLarge(t *testing.T) {
	p := pipe.New(pipe.DefaultOptions())

	err := WriteFrame(p.Writer(), make([]byte, MaxFrameSize+1))

	require.ErrorIs(t, err, ErrFrameTooLarge)
}

// ReadFrame returns the frames in order and then io.EOF.
func TestReadFrame(t *testing.T) {
	p := pipe.New(pipe.DefaultOptions())
	for _, payload := range []string{"hello", "", "world"} {
		require.NoError(t, WriteFrame(p.Writer(), []byte(payload)))
	}
	p.Writer().Complete(nil)

	var frames []string
	for {
		payload, err := ReadFrame(context.Background(), p.Reader())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frames = append(frames, string(payload))
	}
	assert.Equal(t, []string{"hello", "", "world"}, frames)
}

// ReadFrame waits for a frame split across several flushes.
func TestReadFrameSplit(t *testing.T) {
	p := pipe.New(pipe.DefaultOptions())
	ctx := context.Background()
	done := make(chan []byte, 1)
	go func() {
		payload, err := ReadFrame(ctx, p.Reader())
		assert.NoError(t, err)
		done <- payload
	}()

	for _, chunk := range [][]byte{{0}, {0, 3, 'a'}, {'b'}, {'c', 0}} {
		_, err := p.Writer().Write(chunk)
		require.NoError(t, err)
		_, err = p.Writer().Flush(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, "abc", string(<-done))
}

// ReadFrame reports a truncated frame and a cancelled read.
func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// data is written into the pipe before reading.
		data []byte

		// prepare acts on the pipe before reading.
		prepare func(p *pipe.Pipe)

		// wantErr is the expected error.
		wantErr error
	}{
		{
			name: "truncated header",
			data: []byte{0, 0},
			prepare: func(p *pipe.Pipe) {
				p.Writer().Complete(nil)
			},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name: "truncated payload",
			data: []byte{0, 0, 4, 'a', 'b'},
			prepare: func(p *pipe.Pipe) {
				p.Writer().Complete(nil)
			},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name: "writer completed with error",
			data: nil,
			prepare: func(p *pipe.Pipe) {
				p.Writer().Complete(errMocked)
			},
			wantErr: errMocked,
		},
		{
			name: "read canceled",
			data: []byte{0, 0, 4, 'a'},
			prepare: func(p *pipe.Pipe) {
				p.Reader().CancelPendingRead()
			},
			wantErr: ErrReadCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pipe.New(pipe.DefaultOptions())
			_, err := p.Writer().Write(tt.data)
			require.NoError(t, err)
			_, err = p.Writer().Flush(context.Background())
			require.NoError(t, err)
			tt.prepare(p)

			payload, err := ReadFrame(context.Background(), p.Reader())

			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, payload)
		})
	}
}

// A cancelled read keeps the partial frame for the next call.
func TestReadFrameCancelKeepsPartialFrame(t *testing.T) {
	p := pipe.New(pipe.DefaultOptions())
	ctx := context.Background()
	_, err := p.Writer().Write([]byte{0, 0, 2, 'o'})
	require.NoError(t, err)
	_, err = p.Writer().Flush(ctx)
	require.NoError(t, err)
	p.Reader().CancelPendingRead()

	_, err = ReadFrame(ctx, p.Reader())
	require.ErrorIs(t, err, ErrReadCanceled)

	_, err = p.Writer().Write([]byte{'k'})
	require.NoError(t, err)
	_, err = p.Writer().Flush(ctx)
	require.NoError(t, err)

	payload, err := ReadFrame(ctx, p.Reader())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(payload))
}
