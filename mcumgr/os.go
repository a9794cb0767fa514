package mcumgr

import (
	"context"

	"github.com/arloliu/go-smp/smp"
)

// OS group command IDs.
const (
	OSCmdEcho   uint8 = 0
	OSCmdReset  uint8 = 5
	OSCmdParams uint8 = 6
)

// ResetBootMode selects what a device boots into after Reset.
type ResetBootMode uint8

const (
	BootModeNormal     ResetBootMode = 0
	BootModeBootloader ResetBootMode = 1
)

// Params is the SMP buffer configuration reported by a device.
type Params struct {
	BufSize  uint32 `cbor:"buf_size"`
	BufCount uint32 `cbor:"buf_count"`
}

type echoRequest struct {
	D string `cbor:"d"`
}

type echoResponse struct {
	R string `cbor:"r"`
}

type resetRequest struct {
	BootMode uint8 `cbor:"boot_mode,omitempty"`
	Force    bool  `cbor:"force,omitempty"`
}

// OS sends OS management group commands through a Manager.
type OS struct {
	mgr *Manager
}

// NewOS returns the OS group view of mgr.
func NewOS(mgr *Manager) *OS {
	return &OS{mgr: mgr}
}

// Echo sends msg to the device and returns the echoed string.
func (o *OS) Echo(ctx context.Context, msg string) (string, error) {
	resp, err := CallTyped[echoResponse](ctx, o.mgr, smp.OpWrite, smp.GroupOS, OSCmdEcho, echoRequest{D: msg}, 0)
	if err != nil {
		return "", err
	}

	return resp.R, nil
}

// EchoAsync is the callback form of Echo.
func (o *OS) EchoAsync(msg string, cb func(reply string, err error)) {
	SendTyped[echoResponse](o.mgr, smp.OpWrite, smp.GroupOS, OSCmdEcho, echoRequest{D: msg}, 0,
		func(resp *echoResponse, err error) {
			if resp == nil || err != nil {
				cb("", err)
				return
			}
			cb(resp.R, nil)
		})
}

// Reset asks the device to reboot into mode. force requests a reset even if the device
// would rather refuse it.
func (o *OS) Reset(ctx context.Context, mode ResetBootMode, force bool) error {
	_, err := o.mgr.Call(ctx, smp.OpWrite, smp.GroupOS, OSCmdReset,
		resetRequest{BootMode: uint8(mode), Force: force}, 0)

	return err
}

// Params reads the SMP buffer parameters of the device.
func (o *OS) Params(ctx context.Context) (*Params, error) {
	return CallTyped[Params](ctx, o.mgr, smp.OpRead, smp.GroupOS, OSCmdParams, nil, smp.FastTimeout)
}
