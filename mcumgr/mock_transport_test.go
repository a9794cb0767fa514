package mcumgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-smp/smp"
)

type sentPacket struct {
	hdr     smp.Header
	data    []byte
	timeout time.Duration
	cb      smp.ResponseFunc
}

// mockTransport records requests; tests answer them explicitly, or through respond.
type mockTransport struct {
	mu      sync.Mutex
	mtu     int
	sent    []sentPacket
	respond func(p sentPacket)
}

var _ smp.Transport = (*mockTransport)(nil)

func newMockTransport() *mockTransport {
	return &mockTransport{mtu: smp.DefaultMTU(smp.SchemeUDP)}
}

func (f *mockTransport) Scheme() smp.Scheme { return smp.SchemeUDP }

func (f *mockTransport) MTU() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mtu
}

func (f *mockTransport) SetMTU(mtu int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mtu = mtu

	return nil
}

func (f *mockTransport) Send(data []byte, timeout time.Duration, cb smp.ResponseFunc) {
	hdr, err := smp.DecodeHeader(data)
	if err != nil {
		cb(nil, err)
		return
	}

	p := sentPacket{hdr: hdr, data: data, timeout: timeout, cb: cb}
	f.mu.Lock()
	f.sent = append(f.sent, p)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		respond(p)
	}
}

func (f *mockTransport) Close() error { return nil }

func (f *mockTransport) packets() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sentPacket(nil), f.sent...)
}

// bySeq returns the recorded request with sequence number seq.
func (f *mockTransport) bySeq(t *testing.T, seq uint8) sentPacket {
	t.Helper()

	for _, p := range f.packets() {
		if p.hdr.Seq == seq {
			return p
		}
	}
	require.FailNow(t, "request not sent", "seq %d", seq)

	return sentPacket{}
}

// responseTo builds the device response to req.
func responseTo(t *testing.T, req smp.Header, version smp.Version, payload any) []byte {
	t.Helper()

	op := smp.OpWriteResponse
	if req.Op == smp.OpRead {
		op = smp.OpReadResponse
	}
	pkt, err := smp.BuildPacket(smp.SchemeUDP, version, op, 0, req.Group, req.Seq, req.CommandID, payload)
	require.NoError(t, err)

	return pkt
}
