package mcumgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-smp/smp"
)

// osDevice answers OS group requests the way a Zephyr device does.
func osDevice(t *testing.T) func(p sentPacket) {
	return func(p sentPacket) {
		var reply any
		switch p.hdr.CommandID {
		case OSCmdEcho:
			var req echoRequest
			require.NoError(t, smp.Unmarshal(p.data[smp.HeaderSize:], &req))
			reply = echoResponse{R: req.D}
		case OSCmdReset:
			var req resetRequest
			require.NoError(t, smp.Unmarshal(p.data[smp.HeaderSize:], &req))
			if !req.Force {
				reply = map[string]any{"rc": int(smp.RCBusy)}
			}
		case OSCmdParams:
			reply = Params{BufSize: 2475, BufCount: 4}
		default:
			reply = map[string]any{"rc": int(smp.RCUnsupported)}
		}

		go p.cb(responseTo(t, p.hdr, smp.SMPv2, reply), nil)
	}
}

func TestOS_Echo(t *testing.T) {
	transport := newMockTransport()
	transport.respond = osDevice(t)
	os := NewOS(newTestManager(t, transport, 0))

	reply, err := os.Echo(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	done := make(chan string, 1)
	os.EchoAsync("async", func(reply string, err error) {
		assert.NoError(t, err)
		done <- reply
	})
	assert.Equal(t, "async", <-done)

	packets := transport.packets()
	require.Len(t, packets, 2)
	assert.Equal(t, smp.OpWrite, packets[0].hdr.Op)
	assert.Equal(t, smp.GroupOS, packets[0].hdr.Group)
}

func TestOS_Reset(t *testing.T) {
	transport := newMockTransport()
	transport.respond = osDevice(t)
	os := NewOS(newTestManager(t, transport, 0))

	var rcErr *smp.ReturnCodeError
	err := os.Reset(context.Background(), BootModeNormal, false)
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, smp.RCBusy, rcErr.RC)

	require.NoError(t, os.Reset(context.Background(), BootModeBootloader, true))
}

func TestOS_Params(t *testing.T) {
	transport := newMockTransport()
	transport.respond = osDevice(t)
	os := NewOS(newTestManager(t, transport, 0))

	params, err := os.Params(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Params{BufSize: 2475, BufCount: 4}, params)

	packets := transport.packets()
	require.Len(t, packets, 1)
	assert.Equal(t, smp.OpRead, packets[0].hdr.Op)
	assert.Equal(t, OSCmdParams, packets[0].hdr.CommandID)
	assert.Equal(t, smp.FastTimeout, packets[0].timeout)
}
