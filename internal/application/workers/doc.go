// Package workers implements the worker pool that executes submitted
// pipeline runs in the background.
//
// The pool keeps a fixed number of goroutines reading from a bounded queue.
// Submissions never block: a full queue is reported with ErrQueueFull and a
// pool that is shutting down with ErrPoolClosed.
//
// The health monitor tracks worker status and records pool metrics.
package workers
