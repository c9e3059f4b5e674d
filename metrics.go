// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import "github.com/VictoriaMetrics/metrics"

// Names of the counters registered into [Config.Metrics].
const (
	MetricBytesReceived   = "duplexsock_bytes_received_total"
	MetricBytesSent       = "duplexsock_bytes_sent_total"
	MetricConnects        = "duplexsock_connects_total"
	MetricConnectFailures = "duplexsock_connect_failures_total"
	MetricAborts          = "duplexsock_aborts_total"
)

// transportMetrics holds the counters a [*Transport] updates. Transports
// sharing the same [*metrics.Set] share the counters.
type transportMetrics struct {
	bytesReceived   *metrics.Counter
	bytesSent       *metrics.Counter
	connects        *metrics.Counter
	connectFailures *metrics.Counter
	aborts          *metrics.Counter
}

func newTransportMetrics(set *metrics.Set) *transportMetrics {
	return &transportMetrics{
		bytesReceived:   set.GetOrCreateCounter(MetricBytesReceived),
		bytesSent:       set.GetOrCreateCounter(MetricBytesSent),
		connects:        set.GetOrCreateCounter(MetricConnects),
		connectFailures: set.GetOrCreateCounter(MetricConnectFailures),
		aborts:          set.GetOrCreateCounter(MetricAborts),
	}
}
