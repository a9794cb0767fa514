// Package udp implements the SMP transport over plain UDP.
//
// Every request is one datagram carrying the 8-byte SMP header and its CBOR payload. Responses
// are matched to requests by the sequence number of their header.
package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-smp/internal/pool"
	"github.com/arloliu/go-smp/internal/task"
	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/smp"
)

type pending struct {
	resp chan []byte
}

// Transport is an smp.Transport over a connected UDP socket.
type Transport struct {
	cfg     *Config
	logger  logger.Logger
	conn    net.Conn
	taskMgr *task.Manager
	pending *xsync.MapOf[uint8, *pending]
	metrics TransportMetrics
	mtu     atomic.Int32
	closed  atomic.Bool
}

var _ smp.Transport = (*Transport)(nil)

// Dial connects a UDP socket to the device of cfg and starts receiving.
func Dial(ctx context.Context, cfg *Config) (*Transport, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", smp.ErrConnectionFailed, err)
	}

	l := logger.WithCategory(cfg.Logger(), logger.CategoryTransport)
	t := &Transport{
		cfg:     cfg,
		logger:  l,
		conn:    conn,
		taskMgr: task.NewManager(ctx, l),
		pending: xsync.NewMapOf[uint8, *pending](),
	}
	t.mtu.Store(int32(cfg.MTU()))

	if err := t.taskMgr.StartReceiver("udp-receiver", cfg.ReadBufferSize(), t.receiverTask, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	l.Info("udp transport connected", "local", conn.LocalAddr().String(), "remote", conn.RemoteAddr().String())

	return t, nil
}

// Scheme returns smp.SchemeUDP.
func (t *Transport) Scheme() smp.Scheme {
	return smp.SchemeUDP
}

// MTU returns the largest request the transport sends.
func (t *Transport) MTU() int {
	return int(t.mtu.Load())
}

// SetMTU changes the MTU.
func (t *Transport) SetMTU(mtu int) error {
	if mtu < smp.MinMTU || mtu > smp.MaxMTU {
		return fmt.Errorf("%w: %d is outside of [%d, %d]", smp.ErrInvalidMTU, mtu, smp.MinMTU, smp.MaxMTU)
	}
	t.mtu.Store(int32(mtu))

	return nil
}

// Metrics returns the metrics of the transport.
func (t *Transport) Metrics() *TransportMetrics {
	return &t.metrics
}

// LocalAddr returns the local address of the socket.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send writes data as one datagram and calls cb with the response carrying the same sequence
// number, or with smp.ErrSendTimeout once timeout elapsed.
func (t *Transport) Send(data []byte, timeout time.Duration, cb smp.ResponseFunc) {
	if t.closed.Load() {
		cb(nil, smp.ErrTransportClosed)
		return
	}
	if timeout <= 0 {
		timeout = smp.DefaultTimeout
	}

	if mtu := t.MTU(); len(data) > mtu {
		t.metrics.incErrorCount()
		cb(nil, fmt.Errorf("%w: packet of %d bytes exceeds MTU %d", smp.ErrInsufficientMTU, len(data), mtu))

		return
	}

	seq, err := smp.ReadSequenceNumber(smp.SchemeUDP, data)
	if err != nil {
		cb(nil, err)
		return
	}

	p := &pending{resp: make(chan []byte, 1)}
	if _, loaded := t.pending.LoadOrStore(seq, p); loaded {
		t.metrics.incErrorCount()
		cb(nil, fmt.Errorf("%w: sequence number %d already pending", smp.ErrSendFailed, seq))

		return
	}

	if _, err := t.conn.Write(data); err != nil {
		t.removePending(seq, p)
		t.metrics.incErrorCount()
		t.logger.Error("failed to write request", "seq", seq, "error", err)
		cb(nil, fmt.Errorf("%w: %w", smp.ErrSendFailed, err))

		return
	}
	t.metrics.incSendCount()
	t.metrics.incInflightCount()

	err = t.taskMgr.Start("udp-await", func() bool {
		t.await(seq, p, timeout, cb)
		return false
	})
	if err != nil {
		t.metrics.decInflightCount()
		if t.removePending(seq, p) {
			cb(nil, smp.ErrTransportClosed)
		} else {
			cb(<-p.resp, nil)
		}
	}
}

// Close closes the socket. Pending requests complete with smp.ErrTransportClosed.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.taskMgr.Stop()
	err := t.conn.Close()
	t.taskMgr.Wait()
	t.logger.Info("udp transport closed")

	return err
}

func (t *Transport) await(seq uint8, p *pending, timeout time.Duration, cb smp.ResponseFunc) {
	defer t.metrics.decInflightCount()

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case resp := <-p.resp:
		cb(resp, nil)

	case <-timer.C:
		if !t.removePending(seq, p) {
			cb(<-p.resp, nil)
			return
		}
		t.metrics.incTimeoutCount()
		t.logger.Warn("request timed out", "seq", seq, "timeout", timeout)
		cb(nil, smp.ErrSendTimeout)

	case <-t.taskMgr.Context().Done():
		if !t.removePending(seq, p) {
			cb(<-p.resp, nil)
			return
		}
		cb(nil, smp.ErrTransportClosed)
	}
}

// removePending removes p if it is still the pending request of seq. It returns false when
// the receiver already claimed it, in which case the response is on its way to p.resp.
func (t *Transport) removePending(seq uint8, p *pending) bool {
	removed := false
	t.pending.Compute(seq, func(old *pending, loaded bool) (*pending, bool) {
		if loaded && old == p {
			removed = true
			return nil, true
		}

		return old, !loaded
	})

	return removed
}

func (t *Transport) receiverTask(buf []byte) bool {
	n, err := t.conn.Read(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) || t.closed.Load() {
			return false
		}
		t.metrics.incErrorCount()
		t.logger.Error("failed to read response", "error", err)

		return true
	}

	seq, err := smp.ReadSequenceNumber(smp.SchemeUDP, buf[:n])
	if err != nil {
		t.metrics.incErrorCount()
		t.logger.Warn("dropping undecodable datagram", "len", n, "error", err)

		return true
	}

	p, ok := t.pending.LoadAndDelete(seq)
	if !ok {
		t.metrics.incUnmatchedCount()
		t.logger.Warn("dropping response without pending request", "seq", seq, "len", n)

		return true
	}
	t.metrics.incRecvCount()
	p.resp <- bytes.Clone(buf[:n])

	return true
}
