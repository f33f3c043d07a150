package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kmatov/barcache/internal/model"
)

// fakeProvider returns canned bars per symbol.
type fakeProvider struct {
	fn func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error)
}

func (p *fakeProvider) FetchBars(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
	return p.fn(ctx, req)
}

// fakeSink records writes and injected failures.
type fakeSink struct {
	mu       sync.Mutex
	writes   []model.SeriesKey
	failFor  map[model.SeriesKey]error
	closed   int
	closeErr error
}

func (s *fakeSink) WriteBars(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[key]; ok {
		return err
	}
	s.writes = append(s.writes, key)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResultTimeout = 2 * time.Second
	cfg.RequestTimeout = time.Second
	cfg.ProgressEvery = 3
	return cfg
}

func makePlan(n int) []model.FetchRequest {
	plan := make([]model.FetchRequest, 0, n)
	for i := 0; i < n; i++ {
		plan = append(plan, model.FetchRequest{
			Key: model.SeriesKey{
				Symbol:       fmt.Sprintf("SYM%02d", i),
				IntervalLen:  60,
				IntervalType: model.IntervalSeconds,
			},
			BeginPeriod: time.Date(2020, 6, 2, 0, 0, 0, 0, time.UTC),
		})
	}
	return plan
}

func oneBar() []model.Bar {
	return []model.Bar{{
		Ts: time.Date(2020, 6, 2, 14, 30, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100,
	}}
}

func TestPipeline_PersistsEveryResult(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		return oneBar(), nil
	}}
	sink := &fakeSink{}

	p := New(testConfig(), provider, sink, nil)
	summary, err := p.Run(context.Background(), makePlan(7))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Persisted != 7 {
		t.Errorf("Persisted = %d, want 7", summary.Persisted)
	}
	if len(sink.writes) != 7 {
		t.Errorf("sink invocations = %d, want 7", len(sink.writes))
	}
	if summary.Failed != 0 || summary.Empty != 0 {
		t.Errorf("Failed = %d, Empty = %d, want 0, 0", summary.Failed, summary.Empty)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestPipeline_ResultsArriveInPlanOrder(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		return oneBar(), nil
	}}
	sink := &fakeSink{}

	plan := makePlan(5)
	p := New(testConfig(), provider, sink, nil)
	if _, err := p.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, key := range sink.writes {
		if key != plan[i].Key {
			t.Errorf("write %d = %v, want %v", i, key, plan[i].Key)
		}
	}
}

func TestPipeline_SinkFailureIsIsolated(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		return oneBar(), nil
	}}

	plan := makePlan(5)
	sink := &fakeSink{failFor: map[model.SeriesKey]error{
		plan[2].Key: errors.New("disk full"),
	}}

	p := New(testConfig(), provider, sink, nil)
	summary, err := p.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil despite sink failure", err)
	}

	if summary.Persisted != 4 {
		t.Errorf("Persisted = %d, want 4", summary.Persisted)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	// The failing item must not reduce writes for the remaining items.
	if len(sink.writes) != 4 {
		t.Errorf("sink invocations = %d, want 4", len(sink.writes))
	}
}

func TestPipeline_EmptyPayloadSkipsSink(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		if req.Key.Symbol == "SYM01" {
			return nil, nil
		}
		return oneBar(), nil
	}}
	sink := &fakeSink{}

	p := New(testConfig(), provider, sink, nil)
	summary, err := p.Run(context.Background(), makePlan(3))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Empty != 1 {
		t.Errorf("Empty = %d, want 1", summary.Empty)
	}
	if len(sink.writes) != 2 {
		t.Errorf("sink invocations = %d, want 2", len(sink.writes))
	}
}

func TestPipeline_ProviderErrorFailsRun(t *testing.T) {
	provErr := errors.New("connection refused")
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		if req.Key.Symbol == "SYM03" {
			return nil, provErr
		}
		return oneBar(), nil
	}}
	sink := &fakeSink{}

	p := New(testConfig(), provider, sink, nil)
	summary, err := p.Run(context.Background(), makePlan(6))
	if err == nil {
		t.Fatal("Run() error = nil, want provider error")
	}
	if !errors.Is(err, provErr) {
		t.Errorf("Run() error = %v, want wrapped %v", err, provErr)
	}

	// Items ahead of the failure were still persisted.
	if summary.Persisted != 3 {
		t.Errorf("Persisted = %d, want 3", summary.Persisted)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestPipeline_WatchdogFiresOnStalledProvider(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		if req.Key.Symbol == "SYM01" {
			// Ignores ctx on purpose: the drain-side watchdog must fire.
			<-block
			return nil, nil
		}
		return oneBar(), nil
	}}
	sink := &fakeSink{}

	cfg := testConfig()
	cfg.ResultTimeout = 50 * time.Millisecond
	cfg.RequestTimeout = time.Hour

	p := New(cfg, provider, sink, nil)
	summary, err := p.Run(context.Background(), makePlan(3))
	if !errors.Is(err, ErrResultTimeout) {
		t.Fatalf("Run() error = %v, want ErrResultTimeout", err)
	}

	if summary.Persisted != 1 {
		t.Errorf("Persisted = %d, want 1 before stall", summary.Persisted)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestPipeline_EmptyPlan(t *testing.T) {
	provider := &fakeProvider{fn: func(ctx context.Context, req model.FetchRequest) ([]model.Bar, error) {
		t.Error("provider should not be called for an empty plan")
		return nil, nil
	}}
	sink := &fakeSink{}

	p := New(testConfig(), provider, sink, nil)
	summary, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Requests != 0 || summary.Persisted != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}
