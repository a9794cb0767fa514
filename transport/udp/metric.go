package udp

import "sync/atomic"

// TransportMetrics contains atomic metrics for a transport.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type TransportMetrics struct {
	// SendCount indicates the number of requests written.
	SendCount atomic.Uint64
	// RecvCount indicates the number of responses matched to a request.
	RecvCount atomic.Uint64
	// TimeoutCount indicates the number of requests that ended without a response.
	TimeoutCount atomic.Uint64
	// ErrorCount indicates the number of failed writes and undecodable datagrams.
	ErrorCount atomic.Uint64
	// UnmatchedCount indicates the number of responses without a pending request.
	UnmatchedCount atomic.Uint64
	// InflightCount indicates the number of requests waiting for a response.
	InflightCount atomic.Int64
}

func (m *TransportMetrics) incSendCount() {
	m.SendCount.Add(1)
}

func (m *TransportMetrics) incRecvCount() {
	m.RecvCount.Add(1)
}

func (m *TransportMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *TransportMetrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *TransportMetrics) incUnmatchedCount() {
	m.UnmatchedCount.Add(1)
}

func (m *TransportMetrics) incInflightCount() {
	m.InflightCount.Add(1)
}

func (m *TransportMetrics) decInflightCount() {
	m.InflightCount.Add(-1)
}
