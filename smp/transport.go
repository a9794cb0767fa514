package smp

import "time"

// ResponseFunc receives the raw response of a request, or the error that ended it.
//
// Exactly one of resp and err is meaningful. Implementations invoke it exactly once per Send,
// from an arbitrary goroutine.
type ResponseFunc func(resp []byte, err error)

// Transport delivers encoded SMP requests to a device.
//
// Send must never retry on its own and must always complete the request, either with the
// response or with an error such as ErrSendTimeout, so that no expectation stays pending.
type Transport interface {
	// Scheme returns the framing used by the transport.
	Scheme() Scheme
	// MTU returns the largest packet the transport can send.
	MTU() int
	// SetMTU changes the MTU.
	SetMTU(mtu int) error
	// Send writes data and calls cb with the matching response or an error.
	Send(data []byte, timeout time.Duration, cb ResponseFunc)
	// Close releases the transport; pending requests complete with ErrTransportClosed.
	Close() error
}
