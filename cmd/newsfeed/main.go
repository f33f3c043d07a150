package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kmatov/barcache/internal/batch"
	"github.com/kmatov/barcache/internal/blobcache"
	"github.com/kmatov/barcache/internal/config"
	"github.com/kmatov/barcache/internal/model"
	"github.com/kmatov/barcache/internal/provider"
	"github.com/kmatov/barcache/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/newsfeed.local.yaml", "path to config file")
	live := flag.Bool("live", false, "tail the live headline stream after the batch run")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting newsfeed",
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
		"filters", len(cfg.News.Filters),
		"layout", cfg.News.Layout,
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

	if err := run(ctx, cfg, *live, logger); err != nil {
		logger.Error("newsfeed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, live bool, logger *slog.Logger) error {
	client := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		provider.WithLogger(logger),
		provider.WithTimeout(cfg.Provider.Timeout),
		provider.WithRetries(cfg.Provider.MaxRetries, time.Second),
	)

	// Open the response cache if configured
	var cache *blobcache.Cache
	if cfg.News.CachePath != "" {
		var err error
		cache, err = blobcache.Open(cfg.News.CachePath)
		if err != nil {
			return err
		}
		defer cache.Close()
		logger.Info("response cache opened", "path", cfg.News.CachePath)
	}

	acc := batch.New(batch.Config{
		MinibatchSize: cfg.News.MinibatchSize,
		Layout:        batch.Layout(cfg.News.Layout),
		AttachText:    cfg.News.AttachText,
		KeySuffix:     cfg.News.KeySuffix,
	}, client, cache, logger)

	acc.Subscribe(func(ev batch.Event) {
		logger.Info("batch event",
			"type", ev.Type,
			"layout", ev.Layout,
			"size", ev.Size(),
		)
	})

	filters, err := buildFilters(cfg.News.Filters)
	if err != nil {
		return err
	}

	if err := acc.Run(ctx, filters); err != nil {
		var fetchErr *batch.ProviderFetchError
		if errors.As(err, &fetchErr) {
			logger.Error("headline fetch failed",
				"sources", fetchErr.Filter.Sources,
				"symbols", fetchErr.Filter.Symbols,
			)
		}
		return err
	}

	logger.Info("batch run complete", "filters", len(filters))

	if !live {
		return nil
	}

	return tailStream(ctx, cfg, logger)
}

// buildFilters converts config filters into provider filters.
func buildFilters(configs []config.NewsFilterConfig) ([]model.NewsFilter, error) {
	filters := make([]model.NewsFilter, 0, len(configs))
	for _, fc := range configs {
		f := model.NewsFilter{
			Sources: fc.Sources,
			Symbols: fc.Symbols,
			Limit:   fc.Limit,
		}
		if fc.Date != "" {
			date, err := time.Parse("2006-01-02", fc.Date)
			if err != nil {
				return nil, err
			}
			f.Date = date
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// tailStream connects the live headline websocket and writes each record
// to stdout as JSON until the context is cancelled.
func tailStream(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stream := provider.NewHeadlineStream(provider.StreamConfig{
		URL:    cfg.Provider.StreamURL,
		APIKey: cfg.Provider.APIKey,
	}, logger)

	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Close()

	logger.Info("tailing live headlines", "url", cfg.Provider.StreamURL)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-stream.Errors():
			return err
		case rec := <-stream.Records():
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
}
