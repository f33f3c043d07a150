package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kmatov/barcache/internal/model"
)

// ErrResultTimeout is returned when no result arrives within
// Config.ResultTimeout while the producer is still expected to deliver.
var ErrResultTimeout = errors.New("timed out waiting for next result")

// BarProvider fetches bars for one request. Implementations are invoked on
// the pipeline's background goroutine only.
type BarProvider interface {
	FetchBars(ctx context.Context, req model.FetchRequest) ([]model.Bar, error)
}

// Sink persists one result's bars. Close is called exactly once per run,
// on every exit path.
type Sink interface {
	WriteBars(ctx context.Context, key model.SeriesKey, bars []model.Bar) error
	Close() error
}

// Config holds pipeline settings.
type Config struct {
	QueueSize      int           // in-flight results bound (default: 100)
	ProgressEvery  int           // progress log cadence in drained items (default: 20)
	ResultTimeout  time.Duration // watchdog per queue wait (default: 5m)
	RequestTimeout time.Duration // per provider call (default: 1m)
	RatePerSec     float64       // provider call throttle, 0 = unlimited
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:      100,
		ProgressEvery:  20,
		ResultTimeout:  5 * time.Minute,
		RequestTimeout: time.Minute,
	}
}

// Summary reports one run's outcome. Failed counts per-item sink errors,
// which do not fail the run.
type Summary struct {
	RunID     uuid.UUID
	Requests  int
	Persisted int
	Failed    int
	Empty     int
	Duration  time.Duration
}

// Pipeline executes fetch plans. One Run per Pipeline: Run closes the sink.
type Pipeline struct {
	cfg      Config
	provider BarProvider
	sink     Sink
	logger   *slog.Logger
	limiter  *rate.Limiter
}

// New creates a Pipeline. Zero config fields fall back to DefaultConfig.
func New(cfg Config, provider BarProvider, sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = def.ResultTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	p := &Pipeline{
		cfg:      cfg,
		provider: provider,
		sink:     sink,
		logger:   logger,
	}
	if cfg.RatePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return p
}

// Run drives the provider over the plan and persists each result. It
// returns a summary alongside any run-level error; per-item sink failures
// only affect the summary counts.
func (p *Pipeline) Run(ctx context.Context, plan []model.FetchRequest) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.New(), Requests: len(plan)}
	logger := p.logger.With("run_id", summary.RunID)

	defer func() {
		summary.Duration = time.Since(start)
		if err := p.sink.Close(); err != nil {
			logger.Warn("closing sink", "error", err)
		}
	}()

	logger.Info("starting ingestion run",
		"requests", len(plan),
		"queue_size", p.cfg.QueueSize,
	)

	results := make(chan model.FetchResult, p.cfg.QueueSize)

	// Producer error; written before close(results), read after the drain
	// loop sees the channel closed.
	var prodErr error

	go func() {
		defer close(results)
		prodErr = p.produce(ctx, plan, results)
	}()

	drained := 0
	for {
		select {
		case res, ok := <-results:
			if !ok {
				if prodErr != nil {
					return summary, fmt.Errorf("ingest: provider: %w", prodErr)
				}
				logger.Info("ingestion run complete",
					"drained", drained,
					"persisted", summary.Persisted,
					"failed", summary.Failed,
					"empty", summary.Empty,
					"duration", time.Since(start),
				)
				return summary, nil
			}

			drained++
			p.persist(ctx, logger, res, &summary)

			if drained%p.cfg.ProgressEvery == 0 {
				logger.Info("ingestion progress",
					"drained", drained,
					"total", len(plan),
					"persisted", summary.Persisted,
					"failed", summary.Failed,
				)
			}

		case <-time.After(p.cfg.ResultTimeout):
			return summary, fmt.Errorf("ingest: after %d of %d items: %w",
				drained, len(plan), ErrResultTimeout)
		}
	}
}

// produce runs on the background goroutine and pushes one result per
// request, blocking when the queue is full.
func (p *Pipeline) produce(ctx context.Context, plan []model.FetchRequest, results chan<- model.FetchResult) error {
	for _, req := range plan {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		bars, err := p.provider.FetchBars(reqCtx, req)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch %s from %s: %w", req.Key, req.BeginPeriod.Format("2006-01-02"), err)
		}

		select {
		case results <- model.FetchResult{Request: req, Bars: bars}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// persist writes one drained result, isolating sink failures to the item.
func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, res model.FetchResult, summary *Summary) {
	if len(res.Bars) == 0 {
		summary.Empty++
		return
	}

	if err := p.sink.WriteBars(ctx, res.Request.Key, res.Bars); err != nil {
		logger.Error("persist failed, continuing",
			"series", res.Request.Key.String(),
			"begin_period", res.Request.BeginPeriod,
			"bars", len(res.Bars),
			"error", err,
		)
		summary.Failed++
		return
	}

	summary.Persisted++
}
