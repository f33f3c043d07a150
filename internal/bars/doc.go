// Package bars is the bar cache store layer: the ranges query that drives
// reconciliation, the idempotent bar sink, and the splits/dividends table.
//
// Schema:
//
//	bars(symbol TEXT, interval TEXT, ts TIMESTAMPTZ,
//	     open, high, low, close DOUBLE PRECISION, volume BIGINT,
//	     PRIMARY KEY (symbol, interval, ts))
//	splits_dividends(ts TIMESTAMPTZ, symbol TEXT, kind TEXT,
//	     value DOUBLE PRECISION, provider TEXT,
//	     PRIMARY KEY (symbol, ts, kind, provider))
//
// The interval column carries the "<len>_<type>" tag (e.g. "60_s").
// Writes are upserts keyed by series + timestamp: re-fetching an already
// cached period overwrites rather than duplicates.
package bars
