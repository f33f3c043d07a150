package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/kmatov/barcache/internal/model"
)

// Config holds reconciliation policy.
type Config struct {
	// Lookback is how far back a cold-start request begins. Required.
	Lookback time.Duration

	// Staleness skips continuation for series whose last bar is older than
	// this. Zero disables the check.
	Staleness time.Duration

	// RefetchLastDay starts continuations at the beginning of the last
	// cached day instead of the day after, so late corrections to a
	// partial day are picked up. The bar sink is idempotent, so the
	// overlap is safe.
	RefetchLastDay bool

	// Location is the provider calendar zone used for day boundaries.
	// Defaults to America/New_York.
	Location *time.Location
}

// Validate checks the policy before any plan is computed.
func (c Config) Validate() error {
	if c.Lookback <= 0 {
		return fmt.Errorf("plan: lookback must be > 0")
	}
	if c.Staleness < 0 {
		return fmt.Errorf("plan: staleness must be >= 0")
	}
	return nil
}

// DefaultLocation returns the fallback calendar zone. Panics only if the
// tzdata for America/New_York is unavailable, which would make every day
// boundary in the system wrong anyway.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("plan: load America/New_York: " + err.Error())
	}
	return loc
}

// Reconcile computes the fetch plan for one pass.
//
// For every series in ranges, a continuation request is scheduled starting
// at the day boundary after (or at, per Config.RefetchLastDay) the last
// cached bar, unless the series is staler than Config.Staleness. Every
// desired series absent from ranges gets a cold-start request beginning
// Config.Lookback before now, truncated to a day boundary. A series never
// appears in more than one request. Output order is sorted by series key:
// continuations first, then cold starts.
func Reconcile(
	ranges map[model.SeriesKey]model.SeriesRange,
	desired map[model.SeriesKey]struct{},
	cfg Config,
	now time.Time,
) ([]model.FetchRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for key := range desired {
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("plan: desired series: %w", err)
		}
	}

	loc := cfg.Location
	if loc == nil {
		loc = DefaultLocation()
	}

	var cutoff time.Time
	if cfg.Staleness > 0 {
		cutoff = now.Add(-cfg.Staleness)
	}

	coldStart := make(map[model.SeriesKey]struct{}, len(desired))
	for key := range desired {
		coldStart[key] = struct{}{}
	}

	var continuations []model.FetchRequest
	for key, rng := range ranges {
		// A known series is never also a cold start.
		delete(coldStart, key)

		if cfg.Staleness > 0 && rng.Last.Before(cutoff) {
			continue
		}

		begin := startOfDay(rng.Last, loc)
		if !cfg.RefetchLastDay {
			begin = begin.AddDate(0, 0, 1)
		}
		continuations = append(continuations, model.FetchRequest{Key: key, BeginPeriod: begin})
	}
	sortRequests(continuations)

	var colds []model.FetchRequest
	for key := range coldStart {
		colds = append(colds, model.FetchRequest{
			Key:         key,
			BeginPeriod: startOfDay(now.Add(-cfg.Lookback), loc),
		})
	}
	sortRequests(colds)

	return append(continuations, colds...), nil
}

// startOfDay truncates t to midnight in the calendar zone.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// sortRequests orders requests by series key for reproducible logs.
func sortRequests(reqs []model.FetchRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		a, b := reqs[i].Key, reqs[j].Key
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.IntervalLen != b.IntervalLen {
			return a.IntervalLen < b.IntervalLen
		}
		return a.IntervalType < b.IntervalType
	})
}
