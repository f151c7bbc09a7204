package config

import (
	"net/url"

	"github.com/sdzerobot/sdzerobot/errors"
)

// Validate checks configuration values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Wiki.APIURL != "" {
		u, err := url.Parse(c.Wiki.APIURL)
		if err != nil || u.Host == "" {
			return errors.Newf("wiki.api_url %q is not an absolute URL", c.Wiki.APIURL)
		}
	}
	if c.Wiki.EditsPerMinute < 0 {
		return errors.Newf("wiki.edits_per_minute must be >= 0, got %v", c.Wiki.EditsPerMinute)
	}
	if c.Replica.StatementTimeoutSeconds <= 0 {
		return errors.WithHint(
			errors.Newf("replica.statement_timeout_seconds must be positive, got %d", c.Replica.StatementTimeoutSeconds),
			"omit the key to use the default of 600 seconds")
	}
	if c.Report.DefaultMaxPages < 1 || c.Report.MaxPagesCap < 1 {
		return errors.New("report.default_max_pages and report.max_pages_cap must be at least 1")
	}
	if c.Report.DefaultMaxPages > c.Report.MaxPagesCap {
		return errors.Newf("report.default_max_pages (%d) exceeds report.max_pages_cap (%d)",
			c.Report.DefaultMaxPages, c.Report.MaxPagesCap)
	}
	if c.Report.ExcerptBatchSize < 1 || c.Report.ExcerptBatchSize > 100 {
		return errors.Newf("report.excerpt_batch_size must be between 1 and 100, got %d", c.Report.ExcerptBatchSize)
	}
	if c.Report.Concurrency < 1 {
		return errors.Newf("report.concurrency must be at least 1, got %d", c.Report.Concurrency)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", c.Server.Port)
	}
	if c.Schedule.IntervalMinutes < 0 {
		return errors.Newf("schedule.interval_minutes must be >= 0, got %d", c.Schedule.IntervalMinutes)
	}
	return nil
}
