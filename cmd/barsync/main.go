package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kmatov/barcache/internal/bars"
	"github.com/kmatov/barcache/internal/config"
	"github.com/kmatov/barcache/internal/database"
	"github.com/kmatov/barcache/internal/ingest"
	"github.com/kmatov/barcache/internal/model"
	"github.com/kmatov/barcache/internal/plan"
	"github.com/kmatov/barcache/internal/provider"
	"github.com/kmatov/barcache/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/barsync.local.yaml", "path to config file")
	symbols := flag.String("symbols", "", "comma-separated symbol filter (default: all configured)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting barsync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"provider_url", cfg.Provider.BaseURL,
		"series", len(cfg.Sync.Series),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *symbols != "" {
		cfg.Sync.Series = filterSeries(cfg.Sync.Series, strings.Split(*symbols, ","))
		if len(cfg.Sync.Series) == 0 {
			logger.Error("symbol filter matched no configured series", "symbols", *symbols)
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("barsync failed", "error", err)
		os.Exit(1)
	}
}

// filterSeries keeps only configured series whose symbol is in keep.
func filterSeries(series []config.SeriesConfig, keep []string) []config.SeriesConfig {
	want := make(map[string]struct{}, len(keep))
	for _, s := range keep {
		want[strings.TrimSpace(s)] = struct{}{}
	}
	out := series[:0]
	for _, s := range series {
		if _, ok := want[s.Symbol]; ok {
			out = append(out, s)
		}
	}
	return out
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}

	store := bars.NewStore(pool, logger)
	defer store.Close()

	logger.Info("database connected")

	// Create provider client
	client := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		provider.WithLogger(logger),
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithRetries(cfg.Provider.MaxRetries, time.Second),
	)

	// Inspect cached coverage
	ranges, err := store.SeriesRanges(ctx)
	if err != nil {
		return err
	}
	logger.Info("cache inspected", "cached_series", len(ranges))

	// Reconcile the fetch plan against the desired series
	desired := make(map[model.SeriesKey]struct{}, len(cfg.Sync.Series))
	for _, s := range cfg.Sync.Series {
		key := model.SeriesKey{
			Symbol:       s.Symbol,
			IntervalLen:  s.IntervalLen,
			IntervalType: model.IntervalType(s.IntervalType),
		}
		desired[key] = struct{}{}
	}

	loc, err := time.LoadLocation(cfg.Sync.CalendarZone)
	if err != nil {
		return err
	}

	requests, err := plan.Reconcile(ranges, desired, plan.Config{
		Lookback:       cfg.Sync.Lookback,
		Staleness:      cfg.Sync.Staleness,
		RefetchLastDay: cfg.Sync.RefetchLastDay,
		Location:       loc,
	}, time.Now())
	if err != nil {
		return err
	}

	logger.Info("fetch plan reconciled", "requests", len(requests))

	// Refresh split/dividend events before loading bars
	if err := syncAdjustments(ctx, cfg, client, store, logger); err != nil {
		return err
	}

	// Drain the plan through the bounded pipeline
	pipeline := ingest.New(ingest.Config{
		QueueSize:      cfg.Ingest.QueueSize,
		ProgressEvery:  cfg.Ingest.ProgressEvery,
		ResultTimeout:  cfg.Ingest.ResultTimeout,
		RequestTimeout: cfg.Ingest.RequestTimeout,
		RatePerSec:     cfg.Provider.RatePerSec,
	}, client, store, logger)

	summary, err := pipeline.Run(ctx, requests)
	if err != nil {
		if errors.Is(err, ingest.ErrResultTimeout) {
			logger.Error("pipeline stalled",
				"run_id", summary.RunID,
				"persisted", summary.Persisted,
			)
		}
		return err
	}

	logger.Info("sync complete",
		"run_id", summary.RunID,
		"requests", summary.Requests,
		"persisted", summary.Persisted,
		"failed", summary.Failed,
		"empty", summary.Empty,
		"duration", summary.Duration,
	)
	return nil
}

// syncAdjustments refreshes split/dividend events for every configured
// symbol. Failures here are logged per-symbol, not fatal.
func syncAdjustments(ctx context.Context, cfg *config.Config, client *provider.Client, store *bars.Store, logger *slog.Logger) error {
	seen := make(map[string]struct{})
	for _, s := range cfg.Sync.Series {
		if _, ok := seen[s.Symbol]; ok {
			continue
		}
		seen[s.Symbol] = struct{}{}

		events, err := client.FetchAdjustments(ctx, s.Symbol, cfg.Provider.Name)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("failed to fetch adjustments", "symbol", s.Symbol, "error", err)
			continue
		}
		if err := store.AppendAdjustments(ctx, events); err != nil {
			logger.Warn("failed to store adjustments", "symbol", s.Symbol, "error", err)
			continue
		}
		logger.Debug("adjustments refreshed", "symbol", s.Symbol, "events", len(events))
	}
	return nil
}
