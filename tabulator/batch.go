package tabulator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/queue"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// BatchSource lists and loads the pages that use the report template
type BatchSource interface {
	EmbeddedIn(ctx context.Context, title string, namespaces []int) ([]string, error)
	PageFetcher
}

// SaveHistory tells when a template last saved something on its page
type SaveHistory interface {
	LastSaved(ctx context.Context, page, templateKey string) (time.Time, bool, error)
}

// DuePage is a page with templates whose interval has elapsed
type DuePage struct {
	Title string
	// Keys are the template keys of the due templates
	Keys map[string]bool
}

// BatchSummary describes one batch run
type BatchSummary struct {
	Pages     int
	Templates int
	Results   []Result
	// Skipped pages were busy, gone or had changed templates
	Skipped int
}

// Count returns the number of results with the given outcome
func (s BatchSummary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Batch runs the reports whose interval has elapsed
type Batch struct {
	pipeline   *Pipeline
	source     BatchSource
	history    SaveHistory
	queue      *queue.ActionQueue[DuePage]
	namespaces []int
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// NewBatch creates a batch runner. Pages are processed concurrency at a
// time; all templates of one page run one after the other.
func NewBatch(p *Pipeline, source BatchSource, h SaveHistory, concurrency int, namespaces []int) *Batch {
	return &Batch{
		pipeline:   p,
		source:     source,
		history:    h,
		queue:      queue.NewActionQueue[DuePage](concurrency),
		namespaces: namespaces,
		logger:     logger.ComponentLogger("batch"),
		now:        time.Now,
	}
}

// Select finds the templates that are due
func (b *Batch) Select(ctx context.Context) ([]DuePage, error) {
	tpl := b.pipeline.opts.Template
	titles, err := b.source.EmbeddedIn(ctx, "Template:"+tpl, b.namespaces)
	if err != nil {
		return nil, errors.Wrapf(err, "list pages using {{%s}}", tpl)
	}
	if len(titles) == 0 {
		return nil, nil
	}

	pages, err := b.source.Pages(ctx, titles)
	if err != nil {
		return nil, errors.Wrap(err, "load report pages")
	}

	var due []DuePage
	for _, page := range pages {
		if page.Missing {
			continue
		}
		keys, err := b.dueTemplates(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			due = append(due, DuePage{Title: page.Title, Keys: keys})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Title < due[j].Title })
	return due, nil
}

func (b *Batch) dueTemplates(ctx context.Context, page mwapi.Page) (map[string]bool, error) {
	keys := map[string]bool{}
	for _, tpl := range wikitext.FindTemplates(page.Text, b.pipeline.opts.Template) {
		cfg, _ := ParseConfig(tpl, b.pipeline.opts.Limits)
		if cfg.Interval <= 0 {
			continue
		}
		key := history.TemplateKey(tpl.Text)
		last, ok, err := b.history.LastSaved(ctx, page.Title, key)
		if err != nil {
			return nil, err
		}
		interval := time.Duration(cfg.Interval) * 24 * time.Hour
		if !ok || b.now().Sub(last) >= interval {
			keys[key] = true
		}
	}
	return keys, nil
}

// Run selects the due templates and runs them
func (b *Batch) Run(ctx context.Context) (BatchSummary, error) {
	var summary BatchSummary

	due, err := b.Select(ctx)
	if err != nil {
		return summary, err
	}
	summary.Pages = len(due)
	for _, d := range due {
		summary.Templates += len(d.Keys)
	}
	b.pipeline.deps.Metrics.AddBatchDue(summary.Templates)
	b.logger.Infow("Batch selected reports",
		logger.FieldPages, summary.Pages,
		logger.FieldCount, summary.Templates)

	var mu sync.Mutex
	ctx = WithTrigger(ctx, history.TriggerBatch)
	failures := b.queue.Run(ctx, due, func(ctx context.Context, d DuePage) error {
		results, err := b.pipeline.RunSelected(ctx, d.Title, d.Keys)
		mu.Lock()
		summary.Results = append(summary.Results, results...)
		mu.Unlock()
		return err
	})

	for _, f := range failures {
		summary.Skipped++
		b.logger.Warnw("Skipped page",
			logger.FieldPage, f.Item.Title,
			logger.FieldError, f.Err)
	}

	b.logger.Infow("Batch finished",
		logger.FieldCount, len(summary.Results),
		"completed", summary.Count(Completed),
		"handled", summary.Count(Handled),
		"fatal", summary.Count(Fatal),
		"skipped", summary.Skipped)
	return summary, ctx.Err()
}
