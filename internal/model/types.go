package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntervalType is the unit of a bar interval.
type IntervalType string

const (
	IntervalTick    IntervalType = "t"
	IntervalSeconds IntervalType = "s"
	IntervalDaily   IntervalType = "d"
)

// Valid reports whether t is a known interval type.
func (t IntervalType) Valid() bool {
	switch t {
	case IntervalTick, IntervalSeconds, IntervalDaily:
		return true
	}
	return false
}

// SeriesKey identifies a logical time series. Immutable once created.
type SeriesKey struct {
	Symbol       string       // e.g. "AAPL"
	IntervalLen  int          // e.g. 60
	IntervalType IntervalType // e.g. IntervalSeconds
}

// Interval returns the interval tag stored with each bar row (e.g. "60_s").
func (k SeriesKey) Interval() string {
	return strconv.Itoa(k.IntervalLen) + "_" + string(k.IntervalType)
}

// String returns a log-friendly representation (e.g. "AAPL@60_s").
func (k SeriesKey) String() string {
	return k.Symbol + "@" + k.Interval()
}

// Validate checks the key for use in a fetch plan.
func (k SeriesKey) Validate() error {
	if k.Symbol == "" {
		return fmt.Errorf("series key: symbol is required")
	}
	if k.IntervalLen < 1 {
		return fmt.Errorf("series key %s: interval_len must be >= 1", k.Symbol)
	}
	if !k.IntervalType.Valid() {
		return fmt.Errorf("series key %s: unknown interval_type %q", k.Symbol, k.IntervalType)
	}
	return nil
}

// ParseInterval splits an interval tag ("60_s") back into its parts.
func ParseInterval(tag string) (int, IntervalType, error) {
	idx := strings.IndexByte(tag, '_')
	if idx < 1 || idx == len(tag)-1 {
		return 0, "", fmt.Errorf("malformed interval tag %q", tag)
	}
	n, err := strconv.Atoi(tag[:idx])
	if err != nil {
		return 0, "", fmt.Errorf("malformed interval tag %q: %w", tag, err)
	}
	typ := IntervalType(tag[idx+1:])
	if !typ.Valid() {
		return 0, "", fmt.Errorf("malformed interval tag %q: unknown type", tag)
	}
	return n, typ, nil
}

// SeriesRange holds the earliest and latest recorded timestamps for a
// series, as currently stored. Recomputed on every reconciliation pass.
type SeriesRange struct {
	First time.Time
	Last  time.Time
}

// FetchRequest describes one unit of provider work: fetch Key starting at
// BeginPeriod. Created by the reconciler, consumed exactly once.
type FetchRequest struct {
	Key         SeriesKey
	BeginPeriod time.Time
}

// CacheKey returns a deterministic byte key for the blob cache.
func (r FetchRequest) CacheKey() []byte {
	return []byte("bars_" + r.Key.Symbol + "_" + r.Key.Interval() + "_" + r.BeginPeriod.UTC().Format("2006-01-02T15:04:05Z"))
}

// FetchResult pairs a request with the bars the provider returned for it.
// Bars may be nil or empty, meaning no new data.
type FetchResult struct {
	Request FetchRequest
	Bars    []Bar
}

// Bar is one OHLCV row.
type Bar struct {
	Ts     time.Time // period start, UTC
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// AdjustmentKind is the kind of a price adjustment event.
type AdjustmentKind string

const (
	AdjustmentSplit    AdjustmentKind = "split"
	AdjustmentDividend AdjustmentKind = "dividend"
)

// AdjustmentEvent is one split or dividend row. Append-only, never mutated.
type AdjustmentEvent struct {
	Ts       time.Time // effective date, midnight UTC
	Symbol   string
	Kind     AdjustmentKind // split factor or dividend rate
	Value    float64
	Provider string // data provider the event came from
}

// NewsFilter selects one upstream request's worth of headlines.
type NewsFilter struct {
	Sources []string
	Symbols []string
	Date    time.Time // zero value = provider default (today)
	Limit   int
}

// CacheKey returns a deterministic byte key for the blob cache. Field order
// inside the filter is preserved, so two filters with the same content in
// the same order map to the same entry.
func (f NewsFilter) CacheKey() []byte {
	var b strings.Builder
	b.WriteString("news_")
	b.WriteString(strings.Join(f.Sources, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(f.Symbols, ","))
	b.WriteByte('|')
	if !f.Date.IsZero() {
		b.WriteString(f.Date.UTC().Format("2006-01-02"))
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(f.Limit))
	return []byte(b.String())
}
