package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kmatov/barcache/internal/blobcache"
	"github.com/kmatov/barcache/internal/model"
)

// HeadlineSource fetches one request's records and individual story texts.
type HeadlineSource interface {
	Headlines(ctx context.Context, f model.NewsFilter) ([]model.Record, error)
	Story(ctx context.Context, storyID string) (string, error)
}

// Config holds accumulator settings.
type Config struct {
	// MinibatchSize is the rolling window size N. Zero disables minibatch
	// events entirely; batch events are still emitted per request.
	MinibatchSize int

	Layout     Layout
	AttachText bool   // resolve full story text per record
	KeySuffix  string // appended to every emitted field name

	// Identity fields for deduplication. Defaults: story_id, headline.
	IDField    string
	TitleField string
	// TextField receives resolved story text. Default: text.
	TextField string
}

func (c *Config) applyDefaults() {
	if c.Layout == "" {
		c.Layout = LayoutColumn
	}
	if c.IDField == "" {
		c.IDField = "story_id"
	}
	if c.TitleField == "" {
		c.TitleField = "headline"
	}
	if c.TextField == "" {
		c.TextField = "text"
	}
}

// Accumulator is the batch-accumulation state machine. It is single-
// threaded: one request's records are processed fully before the next, and
// every emission is a synchronous callback.
type Accumulator struct {
	cfg    Config
	source HeadlineSource
	cache  *blobcache.Cache // nil disables caching
	logger *slog.Logger

	listeners []Listener
	mini      *buffer // current minibatch, spans requests, nil when empty
	stopped   atomic.Bool
}

// New creates an Accumulator. cache may be nil, in which case every request
// goes straight to the source.
func New(cfg Config, source HeadlineSource, cache *blobcache.Cache, logger *slog.Logger) *Accumulator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		cfg:    cfg,
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Subscribe registers a listener. Listeners are invoked synchronously in
// registration order on every emission.
func (a *Accumulator) Subscribe(l Listener) {
	a.listeners = append(a.listeners, l)
}

// RequestStop asks Run to exit after the in-flight request is finalized.
// There is no mid-request truncation.
func (a *Accumulator) RequestStop() {
	a.stopped.Store(true)
}

// PendingMiniBatch returns how many records the current minibatch holds.
func (a *Accumulator) PendingMiniBatch() int {
	if a.mini == nil {
		return 0
	}
	return a.mini.len()
}

// Run processes each filter in order, finalizing one request fully before
// starting the next. It stops early only between requests, via RequestStop
// or context cancellation.
func (a *Accumulator) Run(ctx context.Context, filters []model.NewsFilter) error {
	for _, f := range filters {
		if a.stopped.Load() {
			a.logger.Info("accumulator stop requested, exiting between requests")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.ProcessRequest(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRequest consumes one request's records, deduplicates and
// accumulates them, and emits the per-request batch event. A provider
// failure aborts the request without finalizing a partial batch.
func (a *Accumulator) ProcessRequest(ctx context.Context, f model.NewsFilter) error {
	records, err := a.consumeRequest(ctx, f)
	if err != nil {
		return &ProviderFetchError{Filter: f, Err: err}
	}

	requestBuf := newBuffer(a.cfg.Layout)

	// Dedup scope is this request only.
	seenIDs := make(map[string]struct{})
	seenTitles := make(map[string]struct{})

	for _, rec := range records {
		id := rec.GetString(a.cfg.IDField)
		title := rec.GetString(a.cfg.TitleField)

		if _, dupID := seenIDs[id]; dupID {
			continue
		}
		if _, dupTitle := seenTitles[title]; dupTitle {
			continue
		}
		seenIDs[id] = struct{}{}
		seenTitles[title] = struct{}{}

		if a.cfg.AttachText {
			text, err := a.resolveText(ctx, id)
			if err != nil {
				return &ProviderFetchError{Filter: f, Err: fmt.Errorf("resolve story %s: %w", id, err)}
			}
			rec = rec.Clone()
			rec.Set(a.cfg.TextField, text)
		}

		out := rec.WithSuffix(a.cfg.KeySuffix)

		if err := requestBuf.append(out); err != nil {
			return fmt.Errorf("batch: %w", err)
		}

		if a.cfg.MinibatchSize > 0 {
			if a.mini == nil {
				a.mini = newBuffer(a.cfg.Layout)
			}
			if err := a.mini.append(out); err != nil {
				return fmt.Errorf("batch: %w", err)
			}
			if a.mini.len() == a.cfg.MinibatchSize {
				a.emit(a.mini.event(EventMiniBatch))
				a.mini = nil
			}
		}
	}

	a.emit(requestBuf.event(EventBatch))
	return nil
}

// consumeRequest returns one request's records, from the cache when
// possible. A fresh fetch is cached before returning. Corrupt cache
// entries are misses: re-fetch and overwrite.
func (a *Accumulator) consumeRequest(ctx context.Context, f model.NewsFilter) ([]model.Record, error) {
	key := f.CacheKey()

	if a.cache != nil {
		blob, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("cache read failed, fetching from provider", "key", string(key), "error", err)
		} else if ok {
			var records []model.Record
			if err := json.Unmarshal(blob, &records); err != nil {
				a.logger.Warn("corrupt cache entry, refetching", "key", string(key), "error", err)
			} else {
				return records, nil
			}
		}
	}

	records, err := a.source.Headlines(ctx, f)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if blob, err := json.Marshal(records); err == nil {
			if err := a.cache.Put(ctx, key, blob); err != nil {
				a.logger.Warn("cache write failed", "key", string(key), "error", err)
			}
		}
	}

	return records, nil
}

// resolveText fetches one story's full text via the story_ cache namespace.
func (a *Accumulator) resolveText(ctx context.Context, storyID string) (string, error) {
	key := []byte("story_" + storyID)

	if a.cache != nil {
		blob, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("cache read failed, fetching story from provider", "story_id", storyID, "error", err)
		} else if ok {
			return string(blob), nil
		}
	}

	text, err := a.source.Story(ctx, storyID)
	if err != nil {
		return "", err
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, key, []byte(text)); err != nil {
			a.logger.Warn("cache write failed", "story_id", storyID, "error", err)
		}
	}

	return text, nil
}

func (a *Accumulator) emit(ev Event) {
	for _, l := range a.listeners {
		l(ev)
	}
}
