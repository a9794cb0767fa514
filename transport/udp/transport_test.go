package udp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/mcumgr"
	"github.com/arloliu/go-smp/smp"
)

// device is a UDP peer answering SMP requests through handle. handle returns the datagrams to
// send back, in order; it may hold requests and answer several at once.
type device struct {
	conn   net.PacketConn
	handle func(req smp.Header, payload []byte) [][]byte
	wg     sync.WaitGroup
}

func newDevice(t *testing.T, handle func(req smp.Header, payload []byte) [][]byte) *device {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &device{conn: conn, handle: handle}
	d.wg.Add(1)
	go d.serve(t)
	t.Cleanup(func() {
		_ = conn.Close()
		d.wg.Wait()
	})

	return d
}

func (d *device) serve(t *testing.T) {
	defer d.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		hdr, err := smp.DecodeHeader(buf[:n])
		if !assert.NoError(t, err) {
			continue
		}
		for _, resp := range d.handle(hdr, append([]byte(nil), buf[smp.HeaderSize:n]...)) {
			_, _ = d.conn.WriteTo(resp, addr)
		}
	}
}

func (d *device) addr() string {
	return d.conn.LocalAddr().String()
}

func reply(t *testing.T, req smp.Header, payload any) []byte {
	op := smp.OpWriteResponse
	if req.Op == smp.OpRead {
		op = smp.OpReadResponse
	}
	pkt, err := smp.BuildPacket(smp.SchemeUDP, smp.SMPv2, op, 0, req.Group, req.Seq, req.CommandID, payload)
	require.NoError(t, err)

	return pkt
}

// echoHandler answers OS echo requests.
func echoHandler(t *testing.T) func(smp.Header, []byte) [][]byte {
	return func(req smp.Header, payload []byte) [][]byte {
		var body map[string]any
		require.NoError(t, smp.Unmarshal(payload, &body))

		return [][]byte{reply(t, req, map[string]any{"r": body["d"]})}
	}
}

func dial(t *testing.T, addr string, opts ...Option) *Transport {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewFromSlog(slogt.New(t)))}, opts...)
	cfg, err := NewConfig(addr, opts...)
	require.NoError(t, err)

	tr, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr
}

func request(t *testing.T, seq uint8, payload any) []byte {
	pkt, err := smp.BuildPacket(smp.SchemeUDP, smp.SMPv2, smp.OpWrite, 0, smp.GroupOS, seq, mcumgr.OSCmdEcho, payload)
	require.NoError(t, err)

	return pkt
}

type outcome struct {
	resp []byte
	err  error
}

func sendAndWait(tr *Transport, data []byte, timeout time.Duration) outcome {
	ch := make(chan outcome, 1)
	tr.Send(data, timeout, func(resp []byte, err error) {
		ch <- outcome{resp, err}
	})

	return <-ch
}

func TestTransport_RoundTrip(t *testing.T) {
	d := newDevice(t, echoHandler(t))
	tr := dial(t, d.addr())

	assert.Equal(t, smp.SchemeUDP, tr.Scheme())
	assert.Equal(t, smp.MaxMTU, tr.MTU())

	out := sendAndWait(tr, request(t, 7, map[string]any{"d": "ping"}), time.Second)
	require.NoError(t, out.err)

	resp, err := smp.ParseResponse(smp.SchemeUDP, out.resp)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), resp.Header.Seq)

	var body map[string]any
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "ping", body["r"])

	assert.Equal(t, uint64(1), tr.Metrics().SendCount.Load())
	assert.Equal(t, uint64(1), tr.Metrics().RecvCount.Load())
	assert.Eventually(t, func() bool { return tr.Metrics().InflightCount.Load() == 0 }, time.Second, time.Millisecond)
}

func TestTransport_Timeout(t *testing.T) {
	d := newDevice(t, func(smp.Header, []byte) [][]byte { return nil })
	tr := dial(t, d.addr())

	start := time.Now()
	out := sendAndWait(tr, request(t, 1, nil), 50*time.Millisecond)
	require.ErrorIs(t, out.err, smp.ErrSendTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, uint64(1), tr.Metrics().TimeoutCount.Load())

	// the sequence number is free again
	_, loaded := tr.pending.Load(1)
	assert.False(t, loaded)
}

func TestTransport_InsufficientMTU(t *testing.T) {
	d := newDevice(t, echoHandler(t))
	tr := dial(t, d.addr(), WithMTU(smp.MinMTU))

	out := sendAndWait(tr, request(t, 1, map[string]any{"d": string(make([]byte, 100))}), time.Second)
	require.ErrorIs(t, out.err, smp.ErrInsufficientMTU)
	assert.Zero(t, tr.Metrics().SendCount.Load())

	require.NoError(t, tr.SetMTU(smp.MaxMTU))
	require.ErrorIs(t, tr.SetMTU(smp.MaxMTU+1), smp.ErrInvalidMTU)
	require.NoError(t, sendAndWait(tr, request(t, 2, map[string]any{"d": "x"}), time.Second).err)
}

func TestTransport_DuplicateSequence(t *testing.T) {
	d := newDevice(t, func(smp.Header, []byte) [][]byte { return nil })
	tr := dial(t, d.addr())

	first := make(chan error, 1)
	tr.Send(request(t, 3, nil), time.Second, func(_ []byte, err error) { first <- err })

	out := sendAndWait(tr, request(t, 3, nil), time.Second)
	require.ErrorIs(t, out.err, smp.ErrSendFailed)

	require.NoError(t, tr.Close())
	require.ErrorIs(t, <-first, smp.ErrTransportClosed)
}

func TestTransport_UnmatchedResponse(t *testing.T) {
	d := newDevice(t, func(req smp.Header, _ []byte) [][]byte {
		stray := req
		stray.Seq++

		return [][]byte{reply(t, stray, nil), reply(t, req, nil)}
	})
	tr := dial(t, d.addr())

	require.NoError(t, sendAndWait(tr, request(t, 10, nil), time.Second).err)
	assert.Eventually(t, func() bool { return tr.Metrics().UnmatchedCount.Load() == 1 }, time.Second, time.Millisecond)
}

func TestTransport_Close(t *testing.T) {
	d := newDevice(t, func(smp.Header, []byte) [][]byte { return nil })
	tr := dial(t, d.addr())

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for seq := range uint8(3) {
		wg.Add(1)
		tr.Send(request(t, seq, nil), time.Minute, func(_ []byte, err error) {
			errs <- err
			wg.Done()
		})
	}

	require.NoError(t, tr.Close())
	wg.Wait()
	close(errs)
	for err := range errs {
		require.ErrorIs(t, err, smp.ErrTransportClosed)
	}

	require.ErrorIs(t, sendAndWait(tr, request(t, 9, nil), time.Second).err, smp.ErrTransportClosed)
	require.NoError(t, tr.Close())
}

func TestTransport_ManagerReordersResponses(t *testing.T) {
	var mu sync.Mutex
	var held []smp.Header
	d := newDevice(t, func(req smp.Header, _ []byte) [][]byte {
		mu.Lock()
		defer mu.Unlock()

		held = append(held, req)
		if len(held) < 3 {
			return nil
		}

		// answer the last request first
		out := make([][]byte, 0, len(held))
		for i := len(held) - 1; i >= 0; i-- {
			out = append(out, reply(t, held[i], map[string]any{"r": held[i].Seq}))
		}
		held = nil

		return out
	})
	tr := dial(t, d.addr())

	mgr, err := mcumgr.NewManager(context.Background(), tr, mcumgr.WithLogger(logger.NewFromSlog(slogt.New(t))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	var order []uint8
	done := make(chan struct{})
	for i := range 3 {
		mgr.Send(smp.OpWrite, smp.GroupOS, mcumgr.OSCmdEcho, map[string]any{"d": ""}, time.Second,
			func(resp *smp.Response, err error) {
				require.NoError(t, err)
				order = append(order, resp.Header.Seq)
				if i == 2 {
					close(done)
				}
			})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "responses not delivered")
	}
	require.Len(t, order, 3)
	assert.Equal(t, order[0]+1, order[1])
	assert.Equal(t, order[1]+1, order[2])
	assert.Equal(t, uint64(1), mgr.Metrics().OutOfOrderCount.Load())
}

func TestTransport_OSEcho(t *testing.T) {
	d := newDevice(t, echoHandler(t))
	tr := dial(t, d.addr())

	mgr, err := mcumgr.NewManager(context.Background(), tr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := mcumgr.NewOS(mgr).Echo(ctx, "hello over udp")
	require.NoError(t, err)
	assert.Equal(t, "hello over udp", got)
}

func TestConfig(t *testing.T) {
	cfg, err := NewConfig("127.0.0.1:1337")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1337", cfg.Addr())
	assert.Equal(t, smp.MaxMTU, cfg.MTU())
	assert.Equal(t, MaxDatagramSize, cfg.ReadBufferSize())
	assert.NotNil(t, cfg.Logger())

	cfg, err = NewConfig("[::1]:1337", WithMTU(512), WithReadBufferSize(2048))
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.MTU())
	assert.Equal(t, 2048, cfg.ReadBufferSize())

	_, err = NewConfig("no-port")
	require.Error(t, err)

	_, err = NewConfig("127.0.0.1:1337", WithMTU(smp.MinMTU-1))
	require.ErrorIs(t, err, smp.ErrInvalidMTU)

	_, err = NewConfig("127.0.0.1:1337", WithReadBufferSize(100))
	require.Error(t, err)

	_, err = Dial(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfigNil)
}
