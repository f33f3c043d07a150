// Package batch accumulates provider records into size-bounded windows.
//
// The accumulator consumes one request's records at a time, deduplicates
// them, optionally resolves full story text through the blob cache, and
// emits two event kinds to registered listeners: fixed-size minibatches as
// they fill (spanning requests) and one batch per request. Every emitted
// event is an independent snapshot; mutating the accumulator afterwards
// never aliases into a delivered event.
package batch
