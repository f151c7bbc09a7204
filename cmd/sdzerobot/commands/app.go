package commands

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/db"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/metrics"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/replica"
	"github.com/sdzerobot/sdzerobot/tabulator"
	"github.com/sdzerobot/sdzerobot/version"
)

// app holds everything a report-running command needs
type app struct {
	cfg       *config.Config
	wiki      *mwapi.Client
	replica   *replica.Conn
	historyDB *sql.DB
	history   *history.Store
	metrics   *metrics.Metrics
	pipeline  *tabulator.Pipeline
}

// openApp loads configuration, logs in to the wiki, and connects to the
// replica and the run history
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	a := &app{cfg: cfg, metrics: metrics.New()}

	a.wiki, err = mwapi.New(wikiOptions(cfg.Wiki))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create wiki client")
	}
	if err := a.wiki.Login(ctx); err != nil {
		return nil, err
	}

	a.replica, err = replica.Connect(cfg, logger.ComponentLogger("replica"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to replica")
	}

	a.historyDB, err = db.OpenWithMigrations(cfg.History.Path, logger.Logger)
	if err != nil {
		a.replica.Close()
		return nil, errors.Wrap(err, "failed to open run history")
	}
	a.history = history.NewStore(a.historyDB)

	a.pipeline = tabulator.NewPipeline(tabulator.Deps{
		Wiki:       a.wiki,
		Namespaces: a.wiki,
		Excerpts:   tabulator.NewWikiExcerpts(a.wiki),
		Query:      a.replica.Executor,
		Replag:     a.replica.Replag,
		History:    a.history,
		Metrics:    a.metrics,
		Logger:     logger.ComponentLogger("pipeline"),
	}, tabulator.OptionsFromConfig(cfg))
	return a, nil
}

func (a *app) batch() *tabulator.Batch {
	return tabulator.NewBatch(a.pipeline, a.wiki, a.history, a.cfg.Report.Concurrency, nil)
}

func (a *app) Close() {
	if a.replica != nil {
		if err := a.replica.Close(); err != nil {
			logger.Warnw("Failed to close replica connection", logger.FieldError, err)
		}
	}
	if a.historyDB != nil {
		a.historyDB.Close()
	}
}

func wikiOptions(cfg config.WikiConfig) mwapi.Options {
	return mwapi.Options{
		APIURL:          cfg.APIURL,
		Username:        cfg.Username,
		Password:        cfg.Password,
		UserAgent:       version.Get().UserAgent(cfg.UserAgent),
		MaxLag:          cfg.MaxLagSeconds,
		EditsPerMinute:  cfg.EditsPerMinute,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		AllowPrivateIPs: cfg.AllowPrivateIPs,
	}
}

// signalContext is cancelled on the first SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
