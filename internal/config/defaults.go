package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProviderTimeout = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultProviderName    = "iqfeed"
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultLookback        = 5 * 365 * 24 * time.Hour
	DefaultCalendarZone    = "America/New_York"
	DefaultQueueSize       = 100
	DefaultProgressEvery   = 20
	DefaultResultTimeout   = 5 * time.Minute
	DefaultRequestTimeout  = time.Minute
	DefaultNewsLayout      = "column"
	DefaultNewsLimit       = 100000
)

func (c *Config) applyDefaults() {
	// Provider defaults
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}
	if c.Provider.Name == "" {
		c.Provider.Name = DefaultProviderName
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Sync defaults
	if c.Sync.Lookback == 0 {
		c.Sync.Lookback = DefaultLookback
	}
	if c.Sync.CalendarZone == "" {
		c.Sync.CalendarZone = DefaultCalendarZone
	}

	// Ingest defaults
	if c.Ingest.QueueSize == 0 {
		c.Ingest.QueueSize = DefaultQueueSize
	}
	if c.Ingest.ProgressEvery == 0 {
		c.Ingest.ProgressEvery = DefaultProgressEvery
	}
	if c.Ingest.ResultTimeout == 0 {
		c.Ingest.ResultTimeout = DefaultResultTimeout
	}
	if c.Ingest.RequestTimeout == 0 {
		c.Ingest.RequestTimeout = DefaultRequestTimeout
	}

	// News defaults
	if c.News.Layout == "" {
		c.News.Layout = DefaultNewsLayout
	}
	for i := range c.News.Filters {
		if c.News.Filters[i].Limit == 0 {
			c.News.Filters[i].Limit = DefaultNewsLimit
		}
	}
}
