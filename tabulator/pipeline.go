package tabulator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/db"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/metrics"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/replica"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Outcome is how a template run ended
type Outcome int

const (
	// Completed means the report was saved
	Completed Outcome = iota
	// Handled means an error box was saved on the page
	Handled
	// Fatal means nothing useful could be saved; the error is only logged
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return history.OutcomeCompleted
	case Handled:
		return history.OutcomeHandled
	default:
		return history.OutcomeFatal
	}
}

// Result describes one run of one template
type Result struct {
	Page         string
	TemplateKey  string
	RunID        string
	Outcome      Outcome
	Err          error
	Rows         int
	Pages        int
	Warnings     []string
	QueryRuntime time.Duration
}

// QueryRunner executes report SQL. Failures should be *replica.QueryError;
// anything else is treated as fatal.
type QueryRunner interface {
	Query(ctx context.Context, sql string) (*replica.Result, error)
}

// ReplagSource reports the replica's replication lag
type ReplagSource interface {
	Get(ctx context.Context) (time.Duration, error)
}

// NamespaceSource provides the wiki's namespace names
type NamespaceSource interface {
	Namespaces(ctx context.Context) (mwapi.Namespaces, error)
}

// RunRecorder persists runs
type RunRecorder interface {
	Start(ctx context.Context, page, templateKey, trigger string) (*history.Run, error)
	Finish(ctx context.Context, id string, sum history.Summary) error
}

// Event types published while running reports
const (
	EventStarted  = "run.started"
	EventFinished = "run.finished"
)

// Event is published when a template run starts and finishes
type Event struct {
	Type         string    `json:"type"`
	RunID        string    `json:"run_id,omitempty"`
	Page         string    `json:"page"`
	TemplateKey  string    `json:"template_key"`
	Trigger      string    `json:"trigger"`
	Outcome      string    `json:"outcome,omitempty"`
	Rows         int       `json:"rows,omitempty"`
	Pages        int       `json:"pages,omitempty"`
	Warnings     int       `json:"warnings,omitempty"`
	QueryRuntime float64   `json:"query_runtime,omitempty"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// EventSink receives run events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Options are the pipeline settings that come from configuration
type Options struct {
	Template         string
	EndTemplate      string
	Limits           Limits
	Summary          string
	ReplagThreshold  time.Duration
	ExcerptBatchSize int
}

// DefaultOptions returns the settings used on the English Wikipedia
func DefaultOptions() Options {
	return Options{
		Template:         "Database report",
		EndTemplate:      DefaultEndTemplate,
		Limits:           DefaultLimits(),
		Summary:          "Updating database report",
		ReplagThreshold:  30 * time.Minute,
		ExcerptBatchSize: maxExcerptBatch,
	}
}

// OptionsFromConfig converts the report section of the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	r := cfg.Report
	if r.Template != "" {
		opts.Template = r.Template
	}
	if r.EndTemplate != "" {
		opts.EndTemplate = r.EndTemplate
	}
	if r.DefaultMaxPages > 0 {
		opts.Limits.DefaultMaxPages = r.DefaultMaxPages
	}
	if r.MaxPagesCap > 0 {
		opts.Limits.MaxPagesCap = r.MaxPagesCap
	}
	if r.EditSummary != "" {
		opts.Summary = r.EditSummary
	}
	if r.ReplagNoticeMinute > 0 {
		opts.ReplagThreshold = time.Duration(r.ReplagNoticeMinute) * time.Minute
	}
	if r.ExcerptBatchSize > 0 {
		opts.ExcerptBatchSize = r.ExcerptBatchSize
	}
	return opts
}

// Deps are the collaborators of a pipeline. Wiki and Query are required.
type Deps struct {
	Wiki       Wiki
	Namespaces NamespaceSource
	Excerpts   ExcerptSource
	Query      QueryRunner
	Replag     ReplagSource
	History    RunRecorder
	Metrics    *metrics.Metrics
	Events     EventSink
	Logger     *zap.SugaredLogger
}

// Pipeline runs report templates: query, transform, render, save
type Pipeline struct {
	deps   Deps
	opts   Options
	writer *Writer
	logger *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps, opts Options) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logger.ComponentLogger("pipeline")
	}
	if opts.Template == "" {
		opts.Template = DefaultOptions().Template
	}
	if opts.EndTemplate == "" {
		opts.EndTemplate = DefaultEndTemplate
	}
	if opts.Limits.DefaultMaxPages <= 0 || opts.Limits.MaxPagesCap <= 0 {
		opts.Limits = DefaultLimits()
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		writer:  NewWriter(deps.Wiki, opts.EndTemplate, opts.Summary, log.Named("writer")),
		logger:  log,
		now:     time.Now,
		running: make(map[string]bool),
	}
}

// SetEventSink replaces where run events go. Call it before running reports.
func (p *Pipeline) SetEventSink(sink EventSink) {
	p.deps.Events = sink
}

// Options returns the pipeline's settings
func (p *Pipeline) Options() Options {
	return p.opts
}

// Rendered is the output of a report before it is saved
type Rendered struct {
	Config       Config
	Pages        []string
	Rows         int
	QueryRuntime time.Duration
	Warnings     []string
}

// Render runs the template's query and formats the output without saving.
// Configuration mistakes are returned marked with ErrConfig and query
// failures as *replica.QueryError.
func (p *Pipeline) Render(ctx context.Context, tpl wikitext.Template) (*Rendered, error) {
	cfg, w := ParseConfig(tpl, p.opts.Limits)
	out := &Rendered{Config: cfg}
	if err := cfg.Validate(); err != nil {
		out.Warnings = w.List()
		return out, err
	}

	qr, err := p.deps.Query.Query(ctx, cfg.SQL)
	if err != nil {
		return out, err
	}
	out.QueryRuntime = qr.Runtime
	rows := NewRows(qr.Columns, qr.Rows)
	out.Rows = len(rows)

	info := PageInfo{
		QueryRuntime:    qr.Runtime,
		LastUpdated:     p.now().UTC(),
		Replag:          p.replag(ctx),
		ReplagThreshold: p.opts.ReplagThreshold,
	}
	pages, err := Format(ctx, cfg, p.env(ctx), rows, info, w)
	out.Warnings = w.List()
	if err != nil {
		return out, errors.Wrap(err, "format report")
	}
	out.Pages = pages
	return out, nil
}

// RunTemplate runs one template on page and saves the outcome. It never
// panics or returns an error: everything is in the Result.
func (p *Pipeline) RunTemplate(ctx context.Context, page string, tpl wikitext.Template) Result {
	res := Result{Page: page, TemplateKey: history.TemplateKey(tpl.Text)}
	trigger := TriggerFromContext(ctx)

	if p.deps.History != nil {
		run, err := p.deps.History.Start(ctx, page, res.TemplateKey, trigger)
		if err != nil {
			p.logger.Warnw("Failed to record run start", logger.FieldPage, page, logger.FieldError, err)
		} else {
			res.RunID = run.ID
			ctx = logger.WithRunID(ctx, run.ID)
		}
	}
	log := logger.FromContext(ctx, p.logger).With(logger.FieldPage, page)

	p.publish(Event{Type: EventStarted, RunID: res.RunID, Page: page, TemplateKey: res.TemplateKey, Trigger: trigger})
	log.Debugw("Running report", logger.FieldTemplate, res.TemplateKey)

	p.run(ctx, log, tpl, &res)

	p.finish(ctx, log, trigger, res)
	return res
}

func (p *Pipeline) run(ctx context.Context, log *zap.SugaredLogger, tpl wikitext.Template, res *Result) {
	rendered, err := p.Render(ctx, tpl)
	if rendered != nil {
		res.Rows = rendered.Rows
		res.QueryRuntime = rendered.QueryRuntime
		res.Warnings = rendered.Warnings
	}
	if err != nil {
		p.fail(ctx, log, tpl, res, err)
		return
	}

	saved, err := p.writer.Save(ctx, res.Page, tpl.Text, rendered.Pages)
	res.Pages = saved
	p.deps.Metrics.AddPagesSaved(saved)

	var fb *FallbackError
	switch {
	case errors.As(err, &fb):
		res.Outcome, res.Err = Handled, err
	case err != nil:
		res.Outcome, res.Err = Fatal, err
	default:
		res.Outcome = Completed
	}
}

// fail decides between an error box and a fatal result
func (p *Pipeline) fail(ctx context.Context, log *zap.SugaredLogger, tpl wikitext.Template, res *Result, err error) {
	var message, hint string
	var qe *replica.QueryError
	switch {
	case errors.Is(err, ErrConfig):
		message = err.Error()
	case errors.As(err, &qe) && !qe.Fatal:
		message, hint = qe.Message, qe.Hint
	default:
		res.Outcome, res.Err = Fatal, err
		return
	}

	log.Debugw("Saving error box", logger.FieldError, message)
	if serr := p.writer.SaveError(ctx, res.Page, tpl.Text, message, hint); serr != nil {
		res.Outcome = Fatal
		res.Err = errors.WithSecondaryError(serr, err)
		return
	}
	p.deps.Metrics.AddPagesSaved(1)
	res.Outcome, res.Err = Handled, err
}

func (p *Pipeline) finish(ctx context.Context, log *zap.SugaredLogger, trigger string, res Result) {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}

	if p.deps.History != nil && res.RunID != "" {
		// Record the outcome even when ctx was cancelled mid-run
		err := p.deps.History.Finish(context.WithoutCancel(ctx), res.RunID, history.Summary{
			Outcome:      res.Outcome.String(),
			Rows:         res.Rows,
			Pages:        res.Pages,
			QueryRuntime: res.QueryRuntime,
			Error:        errText,
		})
		switch {
		case db.IsDatabaseClosed(err):
			log.Debugw("Run log closed, outcome not recorded")
		case err != nil:
			log.Warnw("Failed to record run outcome", logger.FieldError, err)
		}
	}
	p.deps.Metrics.RecordRun(res.Outcome.String(), res.QueryRuntime)

	p.publish(Event{
		Type:         EventFinished,
		RunID:        res.RunID,
		Page:         res.Page,
		TemplateKey:  res.TemplateKey,
		Trigger:      trigger,
		Outcome:      res.Outcome.String(),
		Rows:         res.Rows,
		Pages:        res.Pages,
		Warnings:     len(res.Warnings),
		QueryRuntime: res.QueryRuntime.Seconds(),
		Error:        errText,
	})

	fields := []interface{}{
		logger.FieldOutcome, res.Outcome.String(),
		logger.FieldRows, res.Rows,
		logger.FieldPages, res.Pages,
		logger.FieldWarnings, len(res.Warnings),
		logger.FieldDurationMS, res.QueryRuntime.Milliseconds(),
	}
	switch res.Outcome {
	case Fatal:
		log.Errorw("Report failed", append(fields, logger.FieldError, res.Err)...)
	case Handled:
		log.Infow("Report saved with error", append(fields, logger.FieldError, res.Err)...)
	default:
		log.Infow("Report saved", fields...)
	}
}

// RunPage runs every report template on the page in order. A fatal result
// for one template does not stop the others. The error is for failures
// that concern the whole page: it is already being processed, or cannot
// be read.
func (p *Pipeline) RunPage(ctx context.Context, title string) ([]Result, error) {
	return p.runPage(ctx, title, nil)
}

// RunSelected runs the templates on the page whose key is in keys.
// Templates that changed since they were selected no longer match and are
// skipped.
func (p *Pipeline) RunSelected(ctx context.Context, title string, keys map[string]bool) ([]Result, error) {
	return p.runPage(ctx, title, func(tpl wikitext.Template) bool {
		return keys[history.TemplateKey(tpl.Text)]
	})
}

func (p *Pipeline) runPage(ctx context.Context, title string, want func(wikitext.Template) bool) ([]Result, error) {
	if !p.acquire(title) {
		return nil, errors.Wrapf(errors.ErrBusy, "%s", title)
	}
	defer p.release(title)

	page, err := p.deps.Wiki.Page(ctx, title)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", title)
	}

	templates := wikitext.FindTemplates(page.Text, p.opts.Template)
	if len(templates) == 0 {
		return nil, errors.NewNotFoundError("no {{%s}} template on %s", p.opts.Template, page.Title)
	}

	var results []Result
	for _, tpl := range templates {
		if want != nil && !want(tpl) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, p.RunTemplate(ctx, page.Title, tpl))
	}
	return results, nil
}

// Busy reports whether a page is being processed
func (p *Pipeline) Busy(title string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[wikitext.NormalizeTitle(title)]
}

// Unfilled returns the keys of the report templates in text that are not
// followed by an end marker. A report someone just added looks like this.
func (p *Pipeline) Unfilled(text string) map[string]bool {
	keys := map[string]bool{}
	for _, tpl := range wikitext.FindTemplates(text, p.opts.Template) {
		if _, ok := extractRegion(text, tpl.Text, p.opts.EndTemplate); !ok {
			keys[history.TemplateKey(tpl.Text)] = true
		}
	}
	return keys
}

func (p *Pipeline) acquire(title string) bool {
	key := wikitext.NormalizeTitle(title)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[key] {
		return false
	}
	p.running[key] = true
	return true
}

func (p *Pipeline) release(title string) {
	p.mu.Lock()
	delete(p.running, wikitext.NormalizeTitle(title))
	p.mu.Unlock()
}

func (p *Pipeline) replag(ctx context.Context) time.Duration {
	if p.deps.Replag == nil {
		return 0
	}
	lag, err := p.deps.Replag.Get(ctx)
	if err != nil {
		p.logger.Warnw("Failed to read replication lag", logger.FieldError, err)
		return 0
	}
	return lag
}

func (p *Pipeline) env(ctx context.Context) *Env {
	env := &Env{Excerpts: p.deps.Excerpts, ExcerptBatchSize: p.opts.ExcerptBatchSize}
	if p.deps.Namespaces != nil {
		ns, err := p.deps.Namespaces.Namespaces(ctx)
		if err != nil {
			p.logger.Warnw("Failed to load namespaces", logger.FieldError, err)
		} else {
			env.Namespaces = ns
		}
	}
	return env
}

func (p *Pipeline) publish(e Event) {
	if p.deps.Events == nil {
		return
	}
	e.Time = p.now().UTC()
	p.deps.Events.Publish(e)
}
