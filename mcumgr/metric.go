package mcumgr

import (
	"sync/atomic"
)

// ManagerMetrics contains atomic metrics for a Manager.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ManagerMetrics struct {
	// RequestSendCount indicates the number of requests handed to the transport.
	RequestSendCount atomic.Uint64
	// ResponseRecvCount indicates the number of responses delivered to callbacks.
	ResponseRecvCount atomic.Uint64
	// ErrorCount indicates the number of requests completed with an error.
	ErrorCount atomic.Uint64
	// InflightCount indicates the number of requests awaiting delivery.
	InflightCount atomic.Int64

	// OutOfOrderCount indicates the number of results that overtook earlier requests.
	OutOfOrderCount atomic.Uint64
	// InvalidKeyCount indicates the number of results whose sequence number wasn't expected.
	InvalidKeyCount atomic.Uint64
	// SeqCollisionCount indicates the number of requests issued with a sequence number
	// that was still in flight.
	SeqCollisionCount atomic.Uint64
}

func (m *ManagerMetrics) incRequestSendCount() {
	m.RequestSendCount.Add(1)
}

func (m *ManagerMetrics) incResponseRecvCount() {
	m.ResponseRecvCount.Add(1)
}

func (m *ManagerMetrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *ManagerMetrics) incInflightCount() {
	m.InflightCount.Add(1)
}

func (m *ManagerMetrics) decInflightCount() {
	m.InflightCount.Add(-1)
}

func (m *ManagerMetrics) incOutOfOrderCount() {
	m.OutOfOrderCount.Add(1)
}

func (m *ManagerMetrics) incInvalidKeyCount() {
	m.InvalidKeyCount.Add(1)
}

func (m *ManagerMetrics) incSeqCollisionCount() {
	m.SeqCollisionCount.Add(1)
}
