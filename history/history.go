// Package history keeps a local log of report runs. It is the only state the
// bot holds outside the wiki and is used to decide when an interval report
// is due and to show recent activity.
package history

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/sdzerobot/sdzerobot/db"
	"github.com/sdzerobot/sdzerobot/errors"
)

// Run outcomes as stored in report_runs.outcome
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeHandled   = "handled"
	OutcomeFatal     = "fatal"
)

// What started a run
const (
	TriggerManual = "manual"
	TriggerBatch  = "batch"
	TriggerWeb    = "web"
	TriggerStream = "stream"
)

// Run is one execution of one report template
type Run struct {
	ID           string        `json:"id"`
	Page         string        `json:"page"`
	TemplateKey  string        `json:"template_key"`
	Trigger      string        `json:"trigger"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Outcome      string        `json:"outcome"`
	Rows         int           `json:"rows"`
	Pages        int           `json:"pages"`
	QueryRuntime time.Duration `json:"query_runtime_ns"`
	Error        string        `json:"error,omitempty"`
}

// Summary is what a finished run reports back
type Summary struct {
	Outcome      string
	Rows         int
	Pages        int
	QueryRuntime time.Duration
	Error        string
}

// TemplateKey identifies a template by the hash of its exact source text, so
// any edit to a report's parameters gives it a new key.
func TemplateKey(templateText string) string {
	return strconv.FormatUint(xxh3.HashString(templateText), 16)
}

// Store persists runs in the report_runs table
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on a migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Start records a running run and returns it
func (s *Store) Start(ctx context.Context, page, templateKey, trigger string) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		Page:        page,
		TemplateKey: templateKey,
		Trigger:     trigger,
		StartedAt:   s.now(),
		Outcome:     OutcomeRunning,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_runs (id, page, template_key, trigger, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Page, run.TemplateKey, run.Trigger, run.StartedAt, run.Outcome,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to record start of run on %s", page)
	}
	return run, nil
}

// Finish stores the outcome of a run started with Start
func (s *Store) Finish(ctx context.Context, id string, sum Summary) error {
	finished := s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE report_runs
		SET finished_at = ?, outcome = ?, rows = ?, pages = ?, query_runtime_ms = ?, error = ?
		WHERE id = ?`,
		finished, sum.Outcome, sum.Rows, sum.Pages, sum.QueryRuntime.Milliseconds(), sum.Error, id,
	)
	if db.IsDatabaseClosed(err) {
		return errors.Wrapf(db.ErrDatabaseClosed, "finish run %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", id)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("run %s", id)
	}
	return nil
}

// LastSuccess returns when the template last completed on the page.
// ok is false if it never has.
func (s *Store) LastSuccess(ctx context.Context, page, templateKey string) (t time.Time, ok bool, err error) {
	var finished sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT finished_at FROM report_runs
		WHERE page = ? AND template_key = ? AND outcome = ?
		ORDER BY finished_at DESC LIMIT 1`,
		page, templateKey, OutcomeCompleted,
	).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "failed to read last run of %s", page)
	}
	return finished.Time, finished.Valid, nil
}

// LastSaved returns when a run last put something on the page, either
// the report or an error box. The batch runner schedules from this so a
// broken report is not retried on every tick.
func (s *Store) LastSaved(ctx context.Context, page, templateKey string) (time.Time, bool, error) {
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT finished_at FROM report_runs
		WHERE page = ? AND template_key = ? AND outcome IN (?, ?)
		ORDER BY finished_at DESC LIMIT 1`,
		page, templateKey, OutcomeCompleted, OutcomeHandled,
	).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "failed to read last saved run of %s", page)
	}
	return finished.Time, finished.Valid, nil
}

// Recent returns the newest runs across all pages
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	return s.query(ctx, `
		SELECT id, page, template_key, trigger, started_at, finished_at, outcome, rows, pages, query_runtime_ms, error
		FROM report_runs ORDER BY started_at DESC LIMIT ?`, normalizeLimit(limit))
}

// ForPage returns the newest runs of every template on one page
func (s *Store) ForPage(ctx context.Context, page string, limit int) ([]Run, error) {
	return s.query(ctx, `
		SELECT id, page, template_key, trigger, started_at, finished_at, outcome, rows, pages, query_runtime_ms, error
		FROM report_runs WHERE page = ? ORDER BY started_at DESC LIMIT ?`, page, normalizeLimit(limit))
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			finished sql.NullTime
			ms       int64
		)
		if err := rows.Scan(&run.ID, &run.Page, &run.TemplateKey, &run.Trigger, &run.StartedAt,
			&finished, &run.Outcome, &run.Rows, &run.Pages, &ms, &run.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		run.QueryRuntime = time.Duration(ms) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
