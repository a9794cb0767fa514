package mcumgr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/arloliu/go-smp/internal/task"
	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/smp"
)

// Callback receives the outcome of a request.
//
// resp is non-nil whenever a response was received. err is non-nil for transport failures,
// undecodable responses and device reported errors (*smp.ReturnCodeError, *smp.GroupError).
type Callback func(resp *smp.Response, err error)

// result is what the reorder buffer holds for one request until it can be delivered.
type result struct {
	resp  *smp.Response
	err   error
	op    smp.Op
	group smp.Group
	cmd   uint8
	cb    Callback
}

// Manager correlates SMP requests with their responses over one transport.
//
// Every request gets the next sequence number of the Manager. Callbacks are invoked exactly
// once per request, in the order the requests were sent, on a single goroutine owned by the
// Manager. A callback must not block on another request of the same Manager.
type Manager struct {
	cfg       *ManagerConfig
	transport smp.Transport
	logger    logger.Logger
	seqGen    *smp.SequenceGenerator
	rob       *smp.ReorderBuffer[uint8, result]
	taskMgr   *task.Manager
	exec      *task.Executor
	metrics   ManagerMetrics
	version   atomic.Uint32

	// sendMu keeps sequence allocation, expectation order and transport order identical.
	sendMu     sync.Mutex
	inflightMu sync.Mutex
	inflight   *bitset.BitSet

	closed atomic.Bool
}

// NewManager creates a Manager sending over transport.
func NewManager(ctx context.Context, transport smp.Transport, opts ...ManagerOption) (*Manager, error) {
	cfg, err := NewManagerConfig(opts...)
	if err != nil {
		return nil, err
	}

	return NewManagerWithConfig(ctx, transport, cfg)
}

// NewManagerWithConfig is like NewManager with a prepared configuration.
func NewManagerWithConfig(ctx context.Context, transport smp.Transport, cfg *ManagerConfig) (*Manager, error) {
	if transport == nil {
		return nil, ErrTransportNil
	}
	if cfg == nil {
		return nil, ErrManagerConfigNil
	}

	l := logger.WithCategory(cfg.Logger(), logger.CategoryDefault)
	m := &Manager{
		cfg:       cfg,
		transport: transport,
		logger:    l,
		seqGen:    smp.NewSequenceGenerator(),
		rob:       smp.NewReorderBuffer[uint8, result](smp.SeqLess),
		taskMgr:   task.NewManager(ctx, l),
		inflight:  bitset.New(256),
	}
	m.version.Store(uint32(cfg.Version()))
	m.rob.SetLogger(l)

	exec, err := m.taskMgr.StartExecutor("mcumgr-callbacks")
	if err != nil {
		return nil, err
	}
	m.exec = exec

	return m, nil
}

// Config returns the configuration of the Manager.
func (m *Manager) Config() *ManagerConfig {
	return m.cfg
}

// Transport returns the underlying transport.
func (m *Manager) Transport() smp.Transport {
	return m.transport
}

// Metrics returns the metrics of the Manager.
func (m *Manager) Metrics() *ManagerMetrics {
	return &m.metrics
}

// Version returns the SMP version reported by the most recent response.
func (m *Manager) Version() smp.Version {
	return smp.Version(m.version.Load())
}

// MTU returns the MTU of the transport.
func (m *Manager) MTU() int {
	return m.transport.MTU()
}

// SetMTU changes the transport MTU.
//
// It returns an error wrapping smp.ErrInvalidMTU when mtu is outside [smp.MinMTU, smp.MaxMTU]
// or equal to the current MTU.
func (m *Manager) SetMTU(mtu int) error {
	if mtu < smp.MinMTU || mtu > smp.MaxMTU {
		return fmt.Errorf("%w: %d is outside of [%d, %d]", smp.ErrInvalidMTU, mtu, smp.MinMTU, smp.MaxMTU)
	}
	if m.transport.MTU() == mtu {
		return fmt.Errorf("%w: already set to %d", smp.ErrInvalidMTU, mtu)
	}

	if err := m.transport.SetMTU(mtu); err != nil {
		return err
	}
	m.logger.Info("MTU set", "mtu", mtu)

	return nil
}

// Send issues a request and calls cb with its outcome.
//
// payload is a CBOR encodable map or struct, nil for an empty payload. A zero timeout uses the
// configured default. Send never blocks on the response; cb is called exactly once, after the
// callbacks of every request sent before this one.
func (m *Manager) Send(op smp.Op, group smp.Group, commandID uint8, payload any, timeout time.Duration, cb Callback) {
	if cb == nil {
		cb = func(*smp.Response, error) {}
	}
	if timeout <= 0 {
		timeout = m.cfg.Timeout()
	}

	if m.closed.Load() {
		m.dispatch(func() { cb(nil, ErrManagerClosed) })
		return
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	seq := m.seqGen.Next()
	version := m.Version()
	packet, err := smp.BuildPacket(m.transport.Scheme(), version, op, m.cfg.Flags(), group, seq, commandID, payload)

	m.markInflight(seq)
	m.rob.EnqueueExpectation(seq)
	m.metrics.incInflightCount()

	res := result{op: op, group: group, cmd: commandID, cb: cb}
	if err != nil {
		// the failure waits for the results of earlier requests like any other
		m.handleResult(seq, res, nil, fmt.Errorf("mcumgr: build request: %w", err))
		return
	}
	m.metrics.incRequestSendCount()

	m.logger.Debug("sending request",
		"op", op, "version", version, "group", group, "seq", seq, "id", commandID, "len", len(packet))

	m.transport.Send(packet, timeout, func(resp []byte, err error) {
		m.handleResult(seq, res, resp, err)
	})
}

// Call sends a request and waits for its outcome or for ctx to be done.
//
// Call must not be used from within a Callback of the same Manager.
func (m *Manager) Call(ctx context.Context, op smp.Op, group smp.Group, commandID uint8, payload any, timeout time.Duration) (*smp.Response, error) {
	type outcome struct {
		resp *smp.Response
		err  error
	}

	done := make(chan outcome, 1)
	m.Send(op, group, commandID, payload, timeout, func(resp *smp.Response, err error) {
		done <- outcome{resp, err}
	})

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the callback goroutine after it ran the callbacks already released.
//
// Close doesn't close the transport. Requests completing later have their callbacks invoked
// on a goroutine of their own.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.taskMgr.Stop()
	m.taskMgr.Wait()

	return nil
}

// handleResult is the transport completion handler of the request seq.
func (m *Manager) handleResult(seq uint8, res result, raw []byte, err error) {
	if err == nil {
		resp, perr := smp.ParseResponse(m.transport.Scheme(), raw)
		if perr != nil {
			res.err = perr
		} else {
			res.resp = resp
			if devErr := resp.Err(); devErr != nil {
				res.err = devErr
			}
		}
	} else {
		res.err = err
	}

	ok, rerr := m.rob.Received(res, seq)
	if rerr != nil {
		m.metrics.incInvalidKeyCount()
		m.metrics.incErrorCount()
		m.logger.Warn("unexpected result", "seq", seq, "group", res.group, "id", res.cmd, "error", rerr)
		m.clearInflight(seq)
		m.metrics.decInflightCount()
		m.dispatch(func() { res.cb(res.resp, rerr) })

		return
	}
	if !ok {
		m.metrics.incOutOfOrderCount()
		return
	}

	if err := m.rob.Deliver(m.release); err != nil {
		m.logger.Error("reorder buffer delivery failed", "error", err)
	}
}

// release hands a result, now in order, to the callback goroutine.
// It runs with the reorder buffer locked.
func (m *Manager) release(seq uint8, res result) {
	m.clearInflight(seq)
	m.metrics.decInflightCount()

	if res.resp != nil {
		m.version.Store(uint32(res.resp.Header.Version))
	}

	if res.err != nil {
		m.metrics.incErrorCount()
		m.logger.Error("request failed",
			"op", res.op, "group", res.group, "seq", seq, "id", res.cmd, "error", res.err)
	} else {
		m.metrics.incResponseRecvCount()
		m.logger.Debug("response received",
			"version", res.resp.Header.Version, "group", res.group, "seq", seq, "id", res.cmd, "len", len(res.resp.Payload))
	}

	m.dispatch(func() { res.cb(res.resp, res.err) })
}

// dispatch runs fn on the callback goroutine, or on a new goroutine once the Manager is closed.
func (m *Manager) dispatch(fn func()) {
	if !m.exec.Submit(fn) {
		go fn()
	}
}

func (m *Manager) markInflight(seq uint8) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	if m.inflight.Test(uint(seq)) {
		m.metrics.incSeqCollisionCount()
		m.logger.Warn("sequence number reused while still in flight", "seq", seq)
	}
	m.inflight.Set(uint(seq))
}

func (m *Manager) clearInflight(seq uint8) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	m.inflight.Clear(uint(seq))
}

// InflightSequences returns the sequence numbers of the requests not yet delivered.
func (m *Manager) InflightSequences() []uint8 {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	seqs := make([]uint8, 0, m.inflight.Count())
	for i, ok := m.inflight.NextSet(0); ok; i, ok = m.inflight.NextSet(i + 1) {
		seqs = append(seqs, uint8(i))
	}

	return seqs
}
