// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import "github.com/bassosimone/runtimex"

// Sequence is an ordered view of bytes that may be stored as several
// physically discontiguous segments. Segments are never empty.
//
// A Sequence returned by [*Reader.Read] aliases pipe memory and is only
// valid until the next call to [*Reader.AdvanceTo].
type Sequence [][]byte

// Len returns the total number of bytes across all segments.
func (s Sequence) Len() int {
	var total int
	for _, seg := range s {
		total += len(seg)
	}
	return total
}

// IsEmpty returns whether the sequence contains no bytes.
func (s Sequence) IsEmpty() bool {
	return len(s) == 0
}

// IsSingleSegment returns whether all the bytes live in one segment.
func (s Sequence) IsSingleSegment() bool {
	return len(s) == 1
}

// CopyTo copies up to len(dst) bytes into dst and returns how many were copied.
func (s Sequence) CopyTo(dst []byte) int {
	var n int
	for _, seg := range s {
		if n >= len(dst) {
			break
		}
		n += copy(dst[n:], seg)
	}
	return n
}

// Bytes returns a contiguous copy of the sequence.
func (s Sequence) Bytes() []byte {
	out := make([]byte, s.Len())
	s.CopyTo(out)
	return out
}

// Slice returns the bytes in [start, end) without copying.
//
// It panics if the range is out of bounds.
func (s Sequence) Slice(start, end int) Sequence {
	runtimex.Assert(0 <= start && start <= end && end <= s.Len())
	var out Sequence
	for _, seg := range s {
		if end <= 0 {
			break
		}
		if start >= len(seg) {
			start -= len(seg)
			end -= len(seg)
			continue
		}
		hi := min(end, len(seg))
		if hi > start {
			out = append(out, seg[start:hi])
		}
		start, end = 0, end-len(seg)
	}
	return out
}
