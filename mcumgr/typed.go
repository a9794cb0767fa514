package mcumgr

import (
	"context"
	"time"

	"github.com/arloliu/go-smp/smp"
)

// SendTyped is like Manager.Send but decodes the response payload into a T.
//
// On a device reported error cb still receives the decoded payload along with the error.
func SendTyped[T any](m *Manager, op smp.Op, group smp.Group, commandID uint8, payload any, timeout time.Duration, cb func(*T, error)) {
	m.Send(op, group, commandID, payload, timeout, func(resp *smp.Response, err error) {
		if resp == nil {
			cb(nil, err)
			return
		}

		v := new(T)
		if derr := resp.Decode(v); derr != nil {
			if err == nil {
				err = derr
			}
			cb(nil, err)

			return
		}
		cb(v, err)
	})
}

// CallTyped is like Manager.Call but decodes the response payload into a T.
func CallTyped[T any](ctx context.Context, m *Manager, op smp.Op, group smp.Group, commandID uint8, payload any, timeout time.Duration) (*T, error) {
	resp, err := m.Call(ctx, op, group, commandID, payload, timeout)
	if resp == nil {
		return nil, err
	}

	v := new(T)
	if derr := resp.Decode(v); derr != nil {
		if err == nil {
			err = derr
		}

		return nil, err
	}

	return v, err
}
