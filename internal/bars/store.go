package bars

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmatov/barcache/internal/model"
)

// Store provides access to the bars and splits_dividends tables.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	closeOnce sync.Once
}

// NewStore creates a Store on an existing pool. Close releases the pool.
func NewStore(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// SeriesRanges returns the earliest and latest recorded timestamp for every
// series currently in the store. Rows with a malformed interval tag are
// skipped with a warning rather than failing the whole pass.
func (s *Store) SeriesRanges(ctx context.Context) (map[model.SeriesKey]model.SeriesRange, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, interval, MIN(ts), MAX(ts)
		FROM bars
		GROUP BY symbol, interval
	`)
	if err != nil {
		return nil, fmt.Errorf("query series ranges: %w", err)
	}
	defer rows.Close()

	ranges := make(map[model.SeriesKey]model.SeriesRange)
	for rows.Next() {
		var (
			symbol, tag string
			first, last time.Time
		)
		if err := rows.Scan(&symbol, &tag, &first, &last); err != nil {
			return nil, fmt.Errorf("scan series range: %w", err)
		}

		key, err := seriesKeyFromRow(symbol, tag)
		if err != nil {
			s.logger.Warn("skipping series with malformed interval tag",
				"symbol", symbol,
				"interval", tag,
				"error", err,
			)
			continue
		}
		ranges[key] = model.SeriesRange{First: first.UTC(), Last: last.UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series ranges: %w", err)
	}

	return ranges, nil
}

// seriesKeyFromRow rebuilds a series key from its table representation.
func seriesKeyFromRow(symbol, tag string) (model.SeriesKey, error) {
	n, typ, err := model.ParseInterval(tag)
	if err != nil {
		return model.SeriesKey{}, err
	}
	return model.SeriesKey{Symbol: symbol, IntervalLen: n, IntervalType: typ}, nil
}

// WriteBars upserts one fetch result's bars, tagged with their series key.
// Repeated writes of the same (series, ts) overwrite, never duplicate.
func (s *Store) WriteBars(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO bars (symbol, interval, ts, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, interval, ts) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume
		`, key.Symbol, key.Interval(), b.Ts, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("write bars %s: %w", key, err)
		}
	}

	return nil
}

// AppendAdjustments writes split/dividend rows. Re-appending the same event
// overwrites its value, matching the bar sink's idempotency.
func (s *Store) AppendAdjustments(ctx context.Context, events []model.AdjustmentEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO splits_dividends (ts, symbol, kind, value, provider)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol, ts, kind, provider) DO UPDATE SET value = excluded.value
		`, e.Ts, e.Symbol, string(e.Kind), e.Value, e.Provider)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append adjustments: %w", err)
		}
	}

	return nil
}

// Adjustments returns adjustment events for a symbol in [from, to], oldest
// first.
func (s *Store) Adjustments(ctx context.Context, symbol string, from, to time.Time) ([]model.AdjustmentEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ts, symbol, kind, value, provider
		FROM splits_dividends
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
	`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var events []model.AdjustmentEvent
	for rows.Next() {
		var (
			e    model.AdjustmentEvent
			kind string
		)
		if err := rows.Scan(&e.Ts, &e.Symbol, &kind, &e.Value, &e.Provider); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		e.Kind = model.AdjustmentKind(kind)
		e.Ts = e.Ts.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjustments: %w", err)
	}

	return events, nil
}

// Close releases the underlying pool. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.db.Close()
		}
	})
	return nil
}
