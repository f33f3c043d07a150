package config

import "time"

// Config is the root configuration for a barcache instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Provider ProviderConfig `yaml:"provider"`
	Database DBConfig       `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Ingest   IngestConfig   `yaml:"ingest"`
	News     NewsConfig     `yaml:"news"`
}

// InstanceConfig identifies this instance in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig holds upstream data provider settings.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	StreamURL  string        `yaml:"stream_url"` // websocket headline stream
	APIKey     string        `yaml:"api_key"`
	Name       string        `yaml:"name"` // provider tag on adjustment rows
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RatePerSec float64       `yaml:"rate_per_sec"` // 0 = unlimited
}

// DBConfig holds the bar cache database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SeriesConfig names one desired series.
type SeriesConfig struct {
	Symbol       string `yaml:"symbol"`
	IntervalLen  int    `yaml:"interval_len"`
	IntervalType string `yaml:"interval_type"`
}

// SyncConfig holds reconciliation policy.
type SyncConfig struct {
	Lookback       time.Duration  `yaml:"lookback"`         // cold-start horizon
	Staleness      time.Duration  `yaml:"staleness"`        // 0 = never skip
	RefetchLastDay bool           `yaml:"refetch_last_day"` // continuation overlap policy
	CalendarZone   string         `yaml:"calendar_zone"`    // provider day boundary zone
	Series         []SeriesConfig `yaml:"series"`           // desired series
}

// IngestConfig holds bounded pipeline settings.
type IngestConfig struct {
	QueueSize      int           `yaml:"queue_size"`      // in-flight results bound
	ProgressEvery  int           `yaml:"progress_every"`  // log cadence, in drained items
	ResultTimeout  time.Duration `yaml:"result_timeout"`  // watchdog per queue wait
	RequestTimeout time.Duration `yaml:"request_timeout"` // per provider call
}

// NewsFilterConfig names one headline request.
type NewsFilterConfig struct {
	Sources []string `yaml:"sources"`
	Symbols []string `yaml:"symbols"`
	Date    string   `yaml:"date"` // YYYY-MM-DD, empty = provider default
	Limit   int      `yaml:"limit"`
}

// NewsConfig holds batch accumulator settings.
type NewsConfig struct {
	MinibatchSize int                `yaml:"minibatch_size"` // 0 disables minibatch events
	Layout        string             `yaml:"layout"`         // "column" or "row"
	AttachText    bool               `yaml:"attach_text"`
	KeySuffix     string             `yaml:"key_suffix"`
	CachePath     string             `yaml:"cache_path"` // empty disables caching
	Filters       []NewsFilterConfig `yaml:"filters"`
}
