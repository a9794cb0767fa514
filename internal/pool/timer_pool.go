// Package pool recycles the timers that bound request timeouts.
package pool

import (
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// GetTimer returns a timer firing once after d.
//
// The timer must be handed back with PutTimer once its owner is done waiting on it.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timers.Get().(*time.Timer)
	// Since Go 1.23 Reset discards a pending expiry, so a recycled timer never fires early.
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	t.Stop()
	timers.Put(t)
}
