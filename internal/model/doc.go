// Package model defines shared data types used across barcache.
//
// Conventions:
//   - Timestamps: time.Time in UTC; day boundaries are computed in the
//     provider calendar zone, not UTC.
//   - Series identity: symbol plus interval, tagged in the bars table as
//     "<len>_<type>" (e.g. "60_s").
//   - Cache keys: deterministic byte strings, stable across processes.
package model
