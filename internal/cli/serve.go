package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/config"
	"github.com/fixturegate/fixturegate/internal/logging"
	"github.com/fixturegate/fixturegate/internal/server"
	"github.com/fixturegate/fixturegate/internal/warm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshots over HTTP and warm them on a schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.Serve.Addr = v
		}
		if v, _ := cmd.Flags().GetString("schedule"); v != "" {
			cfg.Serve.WarmSchedule = v
		}
		if cmd.Flags().Changed("warm-on-start") {
			cfg.Serve.WarmOnStart, _ = cmd.Flags().GetBool("warm-on-start")
		}
		noWarm, _ := cmd.Flags().GetBool("no-warm")

		ctx := cmd.Context()
		logger := logging.FromContext(ctx)
		logging.Configure(logger, logging.Flags{
			Verbose:    verbose,
			Quiet:      quiet,
			NoColor:    noColor,
			JSON:       jsonOutput,
			Timestamps: true,
		})
		return runServe(ctx, cfg, noWarm)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().String("schedule", "", "Cron schedule for warm runs (default from config)")
	serveCmd.Flags().Bool("warm-on-start", false, "Run one warm pass at startup")
	serveCmd.Flags().Bool("no-warm", false, "Disable scheduled warming")
}

func runServe(ctx context.Context, cfg config.Config, noWarm bool) error {
	logger := logging.FromContext(ctx)
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !noWarm {
		sched, err := warm.NewScheduler(a.warmer, warm.SchedulerOptions{
			Schedule: cfg.Serve.WarmSchedule,
			Location: a.cal.Location(),
			OnStart:  cfg.Serve.WarmOnStart,
			Logger:   logger.WithPrefix("scheduler"),
		})
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("warm scheduler started", "schedule", cfg.Serve.WarmSchedule, "next", sched.Next())
	}

	if st, err := a.manager.QuotaStatus(ctx); err == nil {
		logger.Info("daily budget", "date", st.Date.String(), "calls_made", st.CallsMade, "max_calls", st.MaxCalls, "locked", st.Locked)
	}

	srv := server.New(server.Config{
		Addr:     cfg.Serve.Addr,
		Service:  a.manager,
		Store:    a.store,
		Calendar: a.cal,
		Metrics:  a.metrics,
		Logger:   logger.WithPrefix("http"),
	})
	return srv.ListenAndServe(ctx)
}
