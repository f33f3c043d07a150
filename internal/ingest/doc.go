// Package ingest runs a fetch plan against the upstream provider and
// persists the results under bounded memory.
//
// One background goroutine drives the provider over the plan and pushes
// each result into a fixed-capacity channel; the calling goroutine drains
// it in arrival order. The channel bound is the sole backpressure
// mechanism: a fast provider blocks once the queue fills. A failed write
// for one result is logged and skipped, never aborting the drain. Each
// wait for the next result is bounded by a watchdog timeout so a wedged
// provider surfaces as an error instead of a hung run.
package ingest
