package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/stream"
	"github.com/sdzerobot/sdzerobot/version"
)

// StreamCmd runs reports as soon as they are added to a page
var StreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Watch recent changes and run newly added reports",
	Long: `Follow the wiki's recentchange stream. When an edit adds a report
template that has no output yet, run it right away.`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	consumer := stream.New(a.cfg.Stream, version.Get().UserAgent(a.cfg.Wiki.UserAgent), a.wiki, a.pipeline)
	pterm.Info.Printf("Watching %s for new reports, press Ctrl+C to stop\n", a.cfg.Stream.Wiki)
	return consumer.Run(ctx)
}
