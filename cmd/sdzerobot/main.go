package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/cmd/sdzerobot/commands"
	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sdzerobot",
	Short: "SDZeroBot database reports",
	Long: `SDZeroBot database reports - fills {{Database report}} templates on the wiki
with the results of their SQL queries against the wiki replicas.

Available commands:
  report   - Run or preview the reports on one page, or run the due batch
  schedule - Run the due batch periodically
  stream   - Watch recent changes and run newly added reports
  serve    - Start the web endpoint for on-demand updates
  history  - Show recent report runs
  config   - Write or show the configuration
  version  - Show version information

Examples:
  sdzerobot report run "Wikipedia:Database reports/Foo"
  sdzerobot report preview "User:Example/Report"
  sdzerobot schedule
  sdzerobot serve --with-stream`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := config.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
			if verbosity == 0 {
				verbosity = cfg.Log.Verbosity
			}
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.ReportCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.StreamCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
