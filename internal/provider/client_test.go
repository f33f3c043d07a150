package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kmatov/barcache/internal/model"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://feed.example.com", "test-key")

		if c.baseURL != "https://feed.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://feed.example.com")
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://feed.example.com", "", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with retries option", func(t *testing.T) {
		c := NewClient("https://feed.example.com", "", WithRetries(5, 2*time.Second))
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://feed.example.com", "", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://feed.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{
			StatusCode: 404,
			Message:    "Not Found",
			Body:       []byte(`{"error": "symbol not found"}`),
		}
		expected := "feed api error 404: Not Found"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{401, false},
			{404, false},
			{499, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-key")
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("request without API key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 404)
		}
		if !strings.Contains(string(apiErr.Body), "not found") {
			t.Errorf("Body should contain 'not found', got %q", string(apiErr.Body))
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds on first try", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`error`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429 and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`rate limited`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 4xx (except 429)", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`bad request`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`error`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})
}

// TestFetchBars tests the bar fetch endpoint.
func TestFetchBars(t *testing.T) {
	req := model.FetchRequest{
		Key:         model.SeriesKey{Symbol: "AAPL", IntervalLen: 60, IntervalType: model.IntervalSeconds},
		BeginPeriod: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/bars" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/bars")
			}
			q := r.URL.Query()
			if q.Get("symbol") != "AAPL" {
				t.Errorf("symbol = %q, want %q", q.Get("symbol"), "AAPL")
			}
			if q.Get("interval_len") != "60" {
				t.Errorf("interval_len = %q, want %q", q.Get("interval_len"), "60")
			}
			if q.Get("interval_type") != "s" {
				t.Errorf("interval_type = %q, want %q", q.Get("interval_type"), "s")
			}
			if q.Get("begin") != "1705276800" {
				t.Errorf("begin = %q, want %q", q.Get("begin"), "1705276800")
			}
			json.NewEncoder(w).Encode(barsResponse{
				Bars: []barWire{
					{Ts: 1705276800, Open: 185.1, High: 185.4, Low: 184.9, Close: 185.2, Volume: 1200},
					{Ts: 1705276860, Open: 185.2, High: 185.6, Low: 185.0, Close: 185.5, Volume: 800},
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		bars, err := c.FetchBars(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(bars) != 2 {
			t.Fatalf("len(bars) = %d, want 2", len(bars))
		}
		if !bars[0].Ts.Equal(time.Unix(1705276800, 0).UTC()) {
			t.Errorf("Ts = %v, want %v", bars[0].Ts, time.Unix(1705276800, 0).UTC())
		}
		if bars[1].Close != 185.5 {
			t.Errorf("Close = %v, want %v", bars[1].Close, 185.5)
		}
	})

	t.Run("empty response returns nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(barsResponse{})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		bars, err := c.FetchBars(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if bars != nil {
			t.Errorf("bars = %v, want nil", bars)
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "symbol not found"})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(0, time.Millisecond))
		_, err := c.FetchBars(context.Background(), req)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError in wrapped error, got %T: %v", err, err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
	})
}

// TestFetchAdjustments tests the adjustments endpoint.
func TestFetchAdjustments(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/adjustments" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/adjustments")
			}
			if r.URL.Query().Get("symbol") != "AAPL" {
				t.Errorf("symbol = %q, want %q", r.URL.Query().Get("symbol"), "AAPL")
			}
			json.NewEncoder(w).Encode(adjustmentsResponse{
				Adjustments: []adjustmentWire{
					{Ts: 1598832000, Symbol: "AAPL", Kind: "split", Value: 4},
					{Ts: 1699574400, Symbol: "AAPL", Kind: "dividend", Value: 0.24},
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		events, err := c.FetchAdjustments(context.Background(), "AAPL", "iqfeed")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("len(events) = %d, want 2", len(events))
		}
		if events[0].Kind != model.AdjustmentSplit {
			t.Errorf("Kind = %q, want %q", events[0].Kind, model.AdjustmentSplit)
		}
		if events[0].Provider != "iqfeed" {
			t.Errorf("Provider = %q, want %q", events[0].Provider, "iqfeed")
		}
		if events[1].Value != 0.24 {
			t.Errorf("Value = %v, want %v", events[1].Value, 0.24)
		}
	})
}

// TestHeadlines tests the news headlines endpoint.
func TestHeadlines(t *testing.T) {
	t.Run("successful fetch preserves field order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/news/headlines" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/news/headlines")
			}
			q := r.URL.Query()
			if q.Get("sources") != "DTN,BEN" {
				t.Errorf("sources = %q, want %q", q.Get("sources"), "DTN,BEN")
			}
			if q.Get("symbols") != "AAPL" {
				t.Errorf("symbols = %q, want %q", q.Get("symbols"), "AAPL")
			}
			if q.Get("date") != "2024-01-15" {
				t.Errorf("date = %q, want %q", q.Get("date"), "2024-01-15")
			}
			if q.Get("limit") != "500" {
				t.Errorf("limit = %q, want %q", q.Get("limit"), "500")
			}
			json.NewEncoder(w).Encode(headlinesResponse{
				Headlines: []headlineWire{
					{StoryID: "s1", Headline: "Apple ships", Sources: "DTN", Symbols: "AAPL", Timestamp: 1705305600},
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		records, err := c.Headlines(context.Background(), model.NewsFilter{
			Sources: []string{"DTN", "BEN"},
			Symbols: []string{"AAPL"},
			Date:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Limit:   500,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("len(records) = %d, want 1", len(records))
		}

		wantFields := []string{"story_id", "headline", "sources", "symbols", "timestamp"}
		fields := records[0].Fields()
		if len(fields) != len(wantFields) {
			t.Fatalf("len(fields) = %d, want %d", len(fields), len(wantFields))
		}
		for i, f := range wantFields {
			if fields[i] != f {
				t.Errorf("fields[%d] = %q, want %q", i, fields[i], f)
			}
		}
		if records[0].GetString("story_id") != "s1" {
			t.Errorf("story_id = %q, want %q", records[0].GetString("story_id"), "s1")
		}
		if records[0].GetString("headline") != "Apple ships" {
			t.Errorf("headline = %q, want %q", records[0].GetString("headline"), "Apple ships")
		}
	})

	t.Run("empty filter sends no parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Query()) != 0 {
				t.Errorf("query should be empty, got %v", r.URL.Query())
			}
			json.NewEncoder(w).Encode(headlinesResponse{})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.Headlines(context.Background(), model.NewsFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// TestStory tests the story text endpoint.
func TestStory(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/news/story/s42" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/news/story/s42")
			}
			json.NewEncoder(w).Encode(storyResponse{StoryID: "s42", Text: "full story text"})
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		text, err := c.Story(context.Background(), "s42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "full story text" {
			t.Errorf("text = %q, want %q", text, "full story text")
		}
	})
}

// TestJSONUnmarshalErrors tests error handling for invalid JSON.
func TestJSONUnmarshalErrors(t *testing.T) {
	t.Run("invalid JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`not valid json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.Story(context.Background(), "s1")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "unmarshal") {
			t.Errorf("error should contain 'unmarshal', got %v", err)
		}
	})
}
