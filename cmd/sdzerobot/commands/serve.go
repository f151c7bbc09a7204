package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/schedule"
	"github.com/sdzerobot/sdzerobot/server"
	"github.com/sdzerobot/sdzerobot/stream"
	"github.com/sdzerobot/sdzerobot/version"
)

// ServeCmd starts the web endpoint
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the web endpoint for on-demand report updates",
	Long: `Serve GET /database-report?page=Title for on-demand updates, the run
history, a websocket feed of run events, and Prometheus metrics.

The scheduler and the stream consumer can run in the same process, so their
runs show up in the event feed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveWithSchedule bool
	serveWithStream   bool
	servePort         int
)

func init() {
	ServeCmd.Flags().BoolVar(&serveWithSchedule, "with-schedule", false, "Also run due reports periodically")
	ServeCmd.Flags().BoolVar(&serveWithStream, "with-stream", false, "Also run newly added reports")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Server
	if servePort > 0 {
		cfg.Port = servePort
	}
	srv := server.New(cfg, a.pipeline, a.history, a.metrics)
	a.pipeline.SetEventSink(srv)

	info := version.Get()
	pterm.DefaultHeader.WithFullWidth().Printf("SDZeroBot database reports %s", info.Short())
	pterm.Info.Printf("Listening on :%s\n", strconv.Itoa(cfg.Port))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if serveWithSchedule {
		ticker := schedule.NewTickerWithContext(ctx, a.batch(), schedule.TickerConfigFromConfig(a.cfg.Schedule))
		ticker.Start()
		g.Go(func() error {
			<-ctx.Done()
			ticker.Stop()
			return nil
		})
	}

	if serveWithStream {
		consumer := stream.New(a.cfg.Stream, version.Get().UserAgent(a.cfg.Wiki.UserAgent), a.wiki, a.pipeline)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	err = g.Wait()
	if err != nil {
		logger.Errorw("Server stopped", logger.FieldError, err)
		return err
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}
