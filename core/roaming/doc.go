// Package roaming implements the upstream synchronization engine of a roaming
// provider.
//
// A Provider buffers EVSE mutations (additions, removals, data changes, status
// changes) and completed charging sessions produced by arbitrary goroutines and
// flushes them to a partner through a Pusher. Two debounced schedulers drive the
// flushes:
//
//   - the service flush pushes EVSE data, delayed status changes and charge
//     detail records,
//   - the status flush pushes status changes on a much shorter interval.
//
// Both flushes share a single lock with the enqueue operations. Network I/O is
// always performed outside that lock.
//
// Status changes of an EVSE whose data has not been pushed yet are moved to the
// delayed list by the status flush, so a partner never receives a status for an
// EVSE it does not know.
//
// Every flush returns a FlushReport and publishes a FlushEvent. Failed batches
// are requeued up to Config.MaxPushAttempts; charge detail records are never
// dropped and are written to a CDRSpool when their push fails.
package roaming
