// Package schedule runs the report batch periodically.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/tabulator"
)

// BatchRunner runs one batch of due reports
type BatchRunner interface {
	Run(ctx context.Context) (tabulator.BatchSummary, error)
}

// TickerConfig contains configuration for the batch ticker
type TickerConfig struct {
	Interval   time.Duration // time between batch starts
	RunOnStart bool          // run a batch right away instead of after the first interval
}

// DefaultTickerConfig returns an hourly ticker that starts immediately
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// TickerConfigFromConfig converts the schedule section of the configuration
func TickerConfigFromConfig(cfg config.ScheduleConfig) TickerConfig {
	tc := DefaultTickerConfig()
	if cfg.IntervalMinutes > 0 {
		tc.Interval = time.Duration(cfg.IntervalMinutes) * time.Minute
	}
	tc.RunOnStart = cfg.RunOnStart
	return tc
}

// Stats describes the ticker's progress
type Stats struct {
	Ticks       int64
	LastTickAt  time.Time
	LastSummary tabulator.BatchSummary
	LastError   error
}

// Ticker runs the batch at a fixed interval. Batches never overlap: a tick
// that arrives while a batch is running is dropped.
type Ticker struct {
	batch    BatchRunner
	interval time.Duration
	onStart  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	stats Stats
}

// NewTicker creates a ticker. It does nothing until Start.
func NewTicker(batch BatchRunner, cfg TickerConfig) *Ticker {
	return NewTickerWithContext(context.Background(), batch, cfg)
}

// NewTickerWithContext creates a ticker that also stops when ctx is done
func NewTickerWithContext(ctx context.Context, batch BatchRunner, cfg TickerConfig) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		batch:    batch,
		interval: cfg.Interval,
		onStart:  cfg.RunOnStart,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   logger.ComponentLogger("ticker"),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Batch ticker started", "interval", t.interval)
}

// Stop cancels a running batch and waits for the loop to exit
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Batch ticker stopped")
}

// Done is closed once the ticker is stopping
func (t *Ticker) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Stats returns a snapshot of the ticker's progress
func (t *Ticker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Ticker) run() {
	defer t.wg.Done()

	if t.onStart {
		t.tick(time.Now())
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.tick(tickTime)
		}
	}
}

func (t *Ticker) tick(now time.Time) {
	if t.ctx.Err() != nil {
		return
	}
	summary, err := t.batch.Run(t.ctx)

	t.mu.Lock()
	t.stats.Ticks++
	t.stats.LastTickAt = now
	t.stats.LastSummary = summary
	t.stats.LastError = err
	ticks := t.stats.Ticks
	t.mu.Unlock()

	if err != nil && t.ctx.Err() == nil {
		t.logger.Warnw("Batch failed", logger.FieldError, err, "tick", ticks)
		return
	}
	t.logger.Debugw("Batch done",
		"tick", ticks,
		logger.FieldCount, len(summary.Results),
		"next", now.Add(t.interval).Format(time.RFC3339))
}
