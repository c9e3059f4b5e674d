// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

// State is the lifecycle state of a [*Transport].
//
// The states progress as follows:
//
//	Unconnected -> Connecting -> Connected -> Closing -> {Closed | Aborted}
//
// A failed connection attempt returns to Unconnected. Aborted is terminal and
// takes precedence over Closing and Closed.
type State int32

const (
	// StateUnconnected means that no connection attempt is in progress.
	StateUnconnected State = iota

	// StateConnecting means that the dial pipeline is running.
	StateConnecting

	// StateConnected means that both pumps are running.
	StateConnected

	// StateClosing means that at least one pump has finished.
	StateClosing

	// StateClosed means that both pumps finished and the socket
	// was closed gracefully.
	StateClosed

	// StateAborted means that the socket was forcibly closed.
	StateAborted
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal returns whether the state is either Closed or Aborted.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateAborted
}
