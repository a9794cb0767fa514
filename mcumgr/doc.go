// Package mcumgr implements the SMP request correlator.
//
// A Manager owns the sequence numbers of one transport. Every request is stamped with the next
// sequence number and registered with a reorder buffer before it is handed to the transport.
// Responses, and transport errors such as timeouts, are matched back by sequence number and
// released to callbacks in the order the requests were sent, even when the device or the link
// reorders them.
//
// Callbacks of one Manager run on a single goroutine, one at a time, so callers observe a
// single-threaded FIFO view of their requests.
//
// Example Usage:
//
//	mgr, err := mcumgr.NewManager(ctx, transport, mcumgr.WithTimeout(10*time.Second))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	reply, err := mcumgr.NewOS(mgr).Echo(ctx, "hello")
package mcumgr
