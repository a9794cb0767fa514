package smp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey indicates a result for a key that is neither the oldest pending
	// expectation nor a known out-of-order key, e.g. a response for an expired request.
	ErrInvalidKey = errors.New("smp: invalid key")

	// ErrEmpty indicates a result received while nothing at all is pending.
	ErrEmpty = errors.New("smp: no pending expectations")

	// ErrNoValueForKey indicates an internal consistency violation of the reorder buffer.
	ErrNoValueForKey = errors.New("smp: no value for key")
)

var (
	// ErrConnectionFailed indicates the transport could not reach the device.
	ErrConnectionFailed = errors.New("smp: connection failed")

	// ErrDisconnected indicates the transport lost the device while a request was pending.
	ErrDisconnected = errors.New("smp: disconnected")

	// ErrSendTimeout indicates no response arrived within the request timeout.
	ErrSendTimeout = errors.New("smp: send timeout")

	// ErrSendFailed indicates the transport failed to write the request.
	ErrSendFailed = errors.New("smp: send failed")

	// ErrInsufficientMTU indicates the request does not fit into the transport MTU.
	ErrInsufficientMTU = errors.New("smp: insufficient MTU")

	// ErrInvalidMTU indicates an MTU outside of [MinMTU, MaxMTU] or equal to the current one.
	ErrInvalidMTU = errors.New("smp: invalid MTU")

	// ErrBadHeader indicates a packet whose SMP header could not be decoded.
	ErrBadHeader = errors.New("smp: bad header")

	// ErrBadResponse indicates a response whose payload could not be decoded.
	ErrBadResponse = errors.New("smp: bad response")

	// ErrTransportClosed indicates the transport was closed.
	ErrTransportClosed = errors.New("smp: transport closed")
)

// KeyError is returned by ReorderBuffer.Received and ReorderBuffer.Deliver.
//
// It unwraps to ErrInvalidKey or ErrNoValueForKey. An invalid key received while nothing was
// pending also matches ErrEmpty.
type KeyError struct {
	Key   any
	Err   error
	empty bool
}

func (e *KeyError) Error() string {
	if e.empty {
		return fmt.Sprintf("%s: %v (%s)", e.Err, e.Key, ErrEmpty)
	}

	return fmt.Sprintf("%s: %v", e.Err, e.Key)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) Is(target error) bool {
	return e.empty && target == ErrEmpty
}
