package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/display"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/spinner"
	"github.com/fixturegate/fixturegate/internal/warm"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Refresh every due snapshot once",
	Long: `Warm fixtures for today and tomorrow, then standings and logos for
each configured league. Calls go through the same gate as reads, so a
warm run never exceeds the daily budget.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rep, err := runWarm(ctx, a)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outJSON(rep)
			}
			if quiet {
				refreshed := 0
				for _, k := range rep.Keys {
					if k.Refreshed {
						refreshed++
					}
				}
				out("%d/%d refreshed\n", refreshed, len(rep.Keys))
				return nil
			}
			outRendered(display.RenderWarmReport(rep, renderOptions(a)))
			return nil
		})
	},
}

// runWarm runs one warm pass, drawing per-key progress on a terminal.
func runWarm(ctx context.Context, a *app) (warm.Report, error) {
	if !spinner.ShouldShow(quiet, jsonOutput, !isTerminal()) {
		return a.warmer.Run(ctx), nil
	}

	plan := a.warmer.Plan()
	ids := make([]string, len(plan))
	for i, k := range plan {
		ids[i] = k.String()
	}
	var rep warm.Report
	err := spinner.Run(os.Stderr, ids, func(done func(spinner.Completion)) {
		rep = a.warmer.RunNotify(ctx, func(res snapshot.WarmResult, err error) {
			c := spinner.Completion{ID: res.Key.String(), Refreshed: res.Refreshed, Detail: res.Reason}
			if err != nil {
				c.Failed = true
				c.Detail = err.Error()
			}
			done(c)
		})
	})
	return rep, err
}
