package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/display"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <fixtures|standings|logos> [date]",
	Short: "Serve one snapshot, refreshing it when due",
	Long: `Serve one snapshot from the store. A stale or missing snapshot is
refreshed through the fetch gate; when the gate denies the call the stored
copy is served marked stale. date is today (default), tomorrow or YYYY-MM-DD.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		league, _ := cmd.Flags().GetInt("league")
		window, _ := cmd.Flags().GetInt("window")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runGet(ctx, a, args, league, window)
		})
	},
}

func init() {
	getCmd.Flags().IntP("league", "l", 0, "League id (required for standings and logos)")
	getCmd.Flags().IntP("window", "w", 0, "Attach fixtures kicking off in the next N hours")
}

func runGet(ctx context.Context, a *app, args []string, league, window int) error {
	kind, err := store.ParseKind(args[0])
	if err != nil {
		return err
	}
	dateArg := ""
	if len(args) > 1 {
		dateArg = args[1]
	}
	date, err := a.cal.Resolve(dateArg)
	if err != nil {
		return err
	}
	key := store.Key{Kind: kind, Date: date, League: league}

	snap, err := a.manager.Get(ctx, key, snapshot.Options{Window: window})
	if err != nil {
		return err
	}

	if jsonOutput {
		return outJSON(snap.Document())
	}
	if quiet {
		out("%s %s %s\n", key, snap.Source, snap.State)
		return nil
	}

	opts := renderOptions(a)
	outRendered(display.RenderSnapshot(snap, opts))
	if kind == store.KindFixtures && snap.Window == nil {
		ms, err := fixtures.Decode(snap.Served())
		if err != nil {
			return fmt.Errorf("decoding fixtures: %w", err)
		}
		ms = fixtures.Dedupe(ms)
		outln(display.RenderMatches(ms, fmt.Sprintf("%d matches", len(ms)), opts))
	}
	return nil
}
