package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/db"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
)

// HistoryCmd lists recent report runs from the local run log
var HistoryCmd = &cobra.Command{
	Use:   "history [page]",
	Short: "Show recent report runs",
	Long: `Show recent report runs, newest first. With a page title, only the
runs for that page are listed, followed by when each of its reports
last completed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyLimit int

func init() {
	HistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	database, err := db.OpenWithMigrations(cfg.History.Path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open run history")
	}
	defer database.Close()
	store := history.NewStore(database)

	var runs []history.Run
	if len(args) == 1 {
		runs, err = store.ForPage(cmd.Context(), args[0], historyLimit)
	} else {
		runs, err = store.Recent(cmd.Context(), historyLimit)
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	data := pterm.TableData{{"Started", "Page", "Trigger", "Outcome", "Rows", "Pages", "Query", "Error"}}
	for _, r := range runs {
		data = append(data, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Page,
			r.Trigger,
			r.Outcome,
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Pages),
			r.QueryRuntime.Round(time.Millisecond).String(),
			r.Error,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	last, err := lastCompleted(cmd.Context(), store, args[0], runs)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("Last completed")
	return pterm.DefaultTable.WithHasHeader().WithData(last).Render()
}

// lastCompleted tabulates when each template seen in runs last completed
func lastCompleted(ctx context.Context, store *history.Store, page string, runs []history.Run) (pterm.TableData, error) {
	data := pterm.TableData{{"Template", "Completed"}}
	seen := map[string]bool{}
	for _, r := range runs {
		if seen[r.TemplateKey] {
			continue
		}
		seen[r.TemplateKey] = true

		when := "never"
		t, ok, err := store.LastSuccess(ctx, page, r.TemplateKey)
		if err != nil {
			return nil, err
		}
		if ok {
			when = t.Local().Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{shortKey(r.TemplateKey), when})
	}
	return data, nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
