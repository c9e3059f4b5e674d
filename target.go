// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Stream-oriented schemes accepted by [ParseTarget].
const (
	// SchemeTCP selects a plain TCP connection.
	SchemeTCP = "tcp"

	// SchemeTLS selects a TLS connection over TCP.
	SchemeTLS = "tls"
)

// Target is the parsed and validated destination of a [*Transport].
//
// Construct using [ParseTarget].
type Target struct {
	// Scheme is either [SchemeTCP] or [SchemeTLS].
	Scheme string

	// Host is the host name or IP address literal, without brackets.
	Host string

	// Port is the explicit destination port.
	Port uint16
}

// ParseTarget parses a URL such as "tcp://example.com:7878".
//
// The scheme is case insensitive and must be stream oriented. The port must
// be explicit. All failures wrap [ErrInvalidTarget].
func ParseTarget(rawURL string) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeTCP, SchemeTLS:
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidTarget, rawURL)
	}

	portString := u.Port()
	if portString == "" {
		return nil, fmt.Errorf("%w: missing port in %q", ErrInvalidTarget, rawURL)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidTarget, portString)
	}

	return &Target{Scheme: scheme, Host: host, Port: uint16(port)}, nil
}

// Address returns the host and port joined with [net.JoinHostPort].
func (t *Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// String returns the target in URL form.
func (t *Target) String() string {
	return t.Scheme + "://" + t.Address()
}
