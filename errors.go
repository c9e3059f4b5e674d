// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import "errors"

// Errors returned by this package wrap one of these sentinels, so that
// callers can use [errors.Is] to learn the failure category while the
// wrapped cause remains available for inspection.
var (
	// ErrInvalidTarget indicates that the target URL is malformed, uses
	// a scheme that is not stream oriented, or lacks an explicit port.
	ErrInvalidTarget = errors.New("duplexsock: invalid target")

	// ErrAddressResolution indicates that resolving the target host
	// failed or produced no usable addresses.
	ErrAddressResolution = errors.New("duplexsock: address resolution failed")

	// ErrConnection indicates that establishing the connection failed.
	ErrConnection = errors.New("duplexsock: connection failed")

	// ErrTransportIO indicates that receiving from or sending to the
	// socket failed while the transport was running.
	ErrTransportIO = errors.New("duplexsock: transport I/O failed")

	// ErrApplicationOutput indicates that the application completed its
	// output with an error, which the send pump reports.
	ErrApplicationOutput = errors.New("duplexsock: application output failed")
)
