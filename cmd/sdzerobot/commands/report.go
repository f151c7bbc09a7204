package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/tabulator"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// ReportCmd groups the one-shot report commands
var ReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run or preview database reports",
	Long: `Run or preview the {{Database report}} templates on a page.

Examples:
  sdzerobot report run "Wikipedia:Database reports/Foo"   # update every report on the page
  sdzerobot report preview "User:Example/Report"          # print the output without saving
  sdzerobot report preview "User:Example/Report" -n 2     # only the second report
  sdzerobot report batch                                  # run every report that is due`,
}

var reportRunCmd = &cobra.Command{
	Use:   "run <page>",
	Short: "Update every report on a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportRun,
}

var reportPreviewCmd = &cobra.Command{
	Use:   "preview <page>",
	Short: "Print a page's report output without saving",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportPreview,
}

var reportBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every report whose interval has elapsed",
	Args:  cobra.NoArgs,
	RunE:  runReportBatch,
}

var previewIndex int

func init() {
	reportPreviewCmd.Flags().IntVarP(&previewIndex, "number", "n", 0, "Only preview the n-th report on the page (1-based)")

	ReportCmd.AddCommand(reportRunCmd)
	ReportCmd.AddCommand(reportPreviewCmd)
	ReportCmd.AddCommand(reportBatchCmd)
}

func runReportRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.RunPage(tabulator.WithTrigger(ctx, history.TriggerManual), args[0])
	printResults(results)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Outcome == tabulator.Fatal {
			return errors.Newf("%d of %d reports failed", countOutcome(results, tabulator.Fatal), len(results))
		}
	}
	return nil
}

func runReportPreview(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.wiki.Page(ctx, args[0])
	if err != nil {
		return err
	}
	opts := a.pipeline.Options()
	templates := wikitext.FindTemplates(page.Text, opts.Template)
	if len(templates) == 0 {
		return errors.NewNotFoundError("no {{%s}} template on %s", opts.Template, page.Title)
	}
	if previewIndex > len(templates) {
		return errors.NewInvalidRequestError("%s has only %d reports", page.Title, len(templates))
	}

	for i, tpl := range templates {
		if previewIndex > 0 && i+1 != previewIndex {
			continue
		}
		if err := previewTemplate(ctx, a, page.Title, i+1, tpl); err != nil {
			return err
		}
	}
	return nil
}

func previewTemplate(ctx context.Context, a *app, title string, n int, tpl wikitext.Template) error {
	pterm.DefaultSection.Printf("%s - report %d", title, n)

	rendered, err := a.pipeline.Render(ctx, tpl)
	for _, w := range renderedWarnings(rendered) {
		pterm.Warning.Println(w)
	}
	if err != nil {
		pterm.Error.Println(err.Error())
		return nil
	}

	pterm.Info.Printf("%d rows, query took %s\n", rendered.Rows, rendered.QueryRuntime.Round(time.Millisecond))
	for i, body := range rendered.Pages {
		target := title
		if i > 0 {
			target = title + "/" + strconv.Itoa(i+1)
		}
		pterm.DefaultBasicText.Println(pterm.Bold.Sprint(target))
		fmt.Println(body)
		fmt.Println()
	}
	return nil
}

func renderedWarnings(r *tabulator.Rendered) []string {
	if r == nil {
		return nil
	}
	return r.Warnings
}

func runReportBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	spinner, _ := pterm.DefaultSpinner.Start("Running due reports...")
	summary, err := a.batch().Run(ctx)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("%d reports on %d pages", len(summary.Results), summary.Pages))
	printResults(summary.Results)
	if summary.Skipped > 0 {
		pterm.Warning.Printf("%d pages skipped\n", summary.Skipped)
	}
	return nil
}

func printResults(results []tabulator.Result) {
	if len(results) == 0 {
		return
	}
	data := pterm.TableData{{"Page", "Outcome", "Rows", "Pages", "Query", "Error"}}
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		data = append(data, []string{
			r.Page,
			outcomeLabel(r.Outcome),
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Pages),
			r.QueryRuntime.Round(time.Millisecond).String(),
			errText,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func outcomeLabel(o tabulator.Outcome) string {
	switch o {
	case tabulator.Completed:
		return pterm.FgGreen.Sprint(o.String())
	case tabulator.Handled:
		return pterm.FgYellow.Sprint(o.String())
	default:
		return pterm.FgRed.Sprint(o.String())
	}
}

func countOutcome(results []tabulator.Result, o tabulator.Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}
