package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/display"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show matches kicking off in the next hours",
	Long: `Merge the fixtures of today and tomorrow and show the matches kicking
off in the next --hours (1 to 48). A thin window is extended once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.manager.Window(ctx, hours)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outJSON(res)
			}
			if quiet {
				for _, m := range res.Matches {
					out("%s %s - %s\n", m.Kickoff.In(a.cal.Location()).Format("2006-01-02 15:04"), m.Home.Name, m.Away.Name)
				}
				return nil
			}
			outRendered(display.RenderWindow(res, renderOptions(a)))
			return nil
		})
	},
}

func init() {
	windowCmd.Flags().Int("hours", 0, "Window length in hours (default from config)")
}
