package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/schedule"
)

// ScheduleCmd runs the due batch periodically until interrupted
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run due reports periodically",
	Long: `Run every report whose interval has elapsed, then repeat every
schedule.interval_minutes until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ticker := schedule.NewTickerWithContext(ctx, a.batch(), schedule.TickerConfigFromConfig(a.cfg.Schedule))
	ticker.Start()
	pterm.Info.Println("Scheduler running, press Ctrl+C to stop")

	<-ctx.Done()
	ticker.Stop()
	pterm.Success.Println("Scheduler stopped")
	return nil
}
