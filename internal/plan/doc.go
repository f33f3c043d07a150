// Package plan computes the minimal fetch plan to bring the bar cache up
// to date: continuation requests for series already in the store and
// cold-start requests for newly desired series.
//
// Reconcile is a pure function of its inputs; it performs no I/O, which is
// what keeps it independently testable.
package plan
