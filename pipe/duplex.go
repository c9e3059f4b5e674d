// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

// Duplex is one end of a bidirectional byte channel.
type Duplex struct {
	// Input is where this end reads bytes written by the other end.
	Input *Reader

	// Output is where this end writes bytes for the other end.
	Output *Writer
}

// NewDuplexPair creates two cross-wired pipes and returns both ends.
//
// The inbound options configure the pipe flowing from transport to app,
// the outbound options the pipe flowing from app to transport. The
// app.Input reads what transport.Output writes and transport.Input
// reads what app.Output writes.
func NewDuplexPair(inbound, outbound Options) (app, transport Duplex) {
	in := New(inbound)
	out := New(outbound)
	app = Duplex{Input: in.Reader(), Output: out.Writer()}
	transport = Duplex{Input: out.Reader(), Output: in.Writer()}
	return
}
