package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Sync.Lookback <= 0 {
		return errors.New("sync.lookback must be > 0")
	}
	if c.Sync.Staleness < 0 {
		return errors.New("sync.staleness must be >= 0")
	}
	if _, err := time.LoadLocation(c.Sync.CalendarZone); err != nil {
		return fmt.Errorf("sync.calendar_zone: %w", err)
	}
	for i, s := range c.Sync.Series {
		if s.Symbol == "" {
			return fmt.Errorf("sync.series[%d].symbol is required", i)
		}
		if s.IntervalLen < 1 {
			return fmt.Errorf("sync.series[%d].interval_len must be >= 1", i)
		}
		switch s.IntervalType {
		case "t", "s", "d":
		default:
			return fmt.Errorf("sync.series[%d].interval_type must be one of t, s, d", i)
		}
	}

	if c.Ingest.QueueSize < 1 {
		return errors.New("ingest.queue_size must be >= 1")
	}
	if c.Ingest.ProgressEvery < 1 {
		return errors.New("ingest.progress_every must be >= 1")
	}
	if c.Ingest.ResultTimeout <= 0 {
		return errors.New("ingest.result_timeout must be > 0")
	}

	if c.News.MinibatchSize < 0 {
		return errors.New("news.minibatch_size must be >= 0")
	}
	switch c.News.Layout {
	case "column", "row":
	default:
		return fmt.Errorf("news.layout must be column or row, got %q", c.News.Layout)
	}
	for i, f := range c.News.Filters {
		if f.Date != "" {
			if _, err := time.Parse("2006-01-02", f.Date); err != nil {
				return fmt.Errorf("news.filters[%d].date: %w", i, err)
			}
		}
		if f.Limit < 1 {
			return fmt.Errorf("news.filters[%d].limit must be >= 1", i)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
