// Package stream watches the wiki's recent changes and runs reports that
// were just added to a page.
package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/queue"
	"github.com/sdzerobot/sdzerobot/tabulator"
)

const (
	defaultQuiet    = 5 * time.Second
	defaultMaxBatch = 50
)

// Change is the part of a recentchange event the consumer looks at
type Change struct {
	Type      string `json:"type"`
	Namespace int    `json:"namespace"`
	Title     string `json:"title"`
	Wiki      string `json:"wiki"`
	Bot       bool   `json:"bot"`
}

// Decode parses one event payload
func Decode(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, errors.Wrap(err, "decode recentchange event")
	}
	return c, nil
}

// Filter selects the changes that may have added a report
type Filter struct {
	Wiki        string
	IncludeBots bool
	// Namespaces restricts the namespaces; empty means all
	Namespaces []int
}

// FilterFromConfig builds the filter for the configured wiki
func FilterFromConfig(cfg config.StreamConfig) Filter {
	return Filter{Wiki: cfg.Wiki, IncludeBots: cfg.IncludeBots, Namespaces: cfg.NamespaceOnly}
}

// Accept reports whether the change is an edit or page creation matching f
func (f Filter) Accept(c Change) bool {
	if c.Title == "" || (f.Wiki != "" && c.Wiki != f.Wiki) {
		return false
	}
	if c.Type != "edit" && c.Type != "new" {
		return false
	}
	if c.Bot && !f.IncludeBots {
		return false
	}
	if len(f.Namespaces) == 0 {
		return true
	}
	for _, ns := range f.Namespaces {
		if ns == c.Namespace {
			return true
		}
	}
	return false
}

// Runner runs selected report templates on a page
type Runner interface {
	RunSelected(ctx context.Context, title string, keys map[string]bool) ([]tabulator.Result, error)
	Unfilled(text string) map[string]bool
}

// subscribeFunc delivers the data of every event until ctx is done
type subscribeFunc func(ctx context.Context, fn func(data []byte)) error

// Consumer reads the recentchange stream, batches the titles of matching
// edits and runs the reports those edits added
type Consumer struct {
	filter    Filter
	quiet     time.Duration
	maxBatch  int
	pages     tabulator.PageFetcher
	runner    Runner
	subscribe subscribeFunc
	logger    *zap.SugaredLogger
}

// New creates a consumer for the configured stream URL
func New(cfg config.StreamConfig, userAgent string, pages tabulator.PageFetcher, runner Runner) *Consumer {
	quiet := time.Duration(cfg.QuietSeconds) * time.Second
	if quiet <= 0 {
		quiet = defaultQuiet
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &Consumer{
		filter:    FilterFromConfig(cfg),
		quiet:     quiet,
		maxBatch:  maxBatch,
		pages:     pages,
		runner:    runner,
		subscribe: sseSubscribe(cfg.URL, userAgent),
		logger:    logger.ComponentLogger("stream"),
	}
}

func sseSubscribe(url, userAgent string) subscribeFunc {
	return func(ctx context.Context, fn func([]byte)) error {
		client := sse.NewClient(url)
		if userAgent != "" {
			client.Headers["User-Agent"] = userAgent
		}
		return client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) > 0 {
				fn(msg.Data)
			}
		})
	}
}

// Run consumes the stream until ctx is cancelled. Titles still buffered
// at that point are processed before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = tabulator.WithTrigger(ctx, history.TriggerStream)
	q := queue.NewBufferedQueue(ctx, c.quiet, c.maxBatch, c.process)
	defer q.Close()

	c.logger.Infow("Listening for new reports", "wiki", c.filter.Wiki)
	err := c.subscribe(ctx, func(data []byte) {
		c.handle(data, q)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "recentchange stream")
	}
	return nil
}

func (c *Consumer) handle(data []byte, q *queue.BufferedQueue[string]) {
	change, err := Decode(data)
	if err != nil {
		c.logger.Debugw("Skipping undecodable event", logger.FieldError, err)
		return
	}
	if c.filter.Accept(change) {
		q.Push(change.Title)
	}
}

// process checks a batch of edited pages for reports without output
func (c *Consumer) process(ctx context.Context, titles []string) {
	pages, err := c.pages.Pages(ctx, titles)
	if err != nil {
		c.logger.Warnw("Failed to load edited pages",
			logger.FieldCount, len(titles),
			logger.FieldError, err)
		return
	}

	for _, page := range pages {
		if page.Missing {
			continue
		}
		keys := c.runner.Unfilled(page.Text)
		if len(keys) == 0 {
			continue
		}
		c.logger.Infow("New report found",
			logger.FieldPage, page.Title,
			logger.FieldCount, len(keys))
		if _, err := c.runner.RunSelected(ctx, page.Title, keys); err != nil {
			c.logger.Warnw("Skipped page", logger.FieldPage, page.Title, logger.FieldError, err)
		}
	}
}
