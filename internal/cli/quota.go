package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/display"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's upstream call budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.manager.QuotaStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outJSON(st)
			}
			if quiet {
				out("%d\n", st.Remaining)
				return nil
			}
			outRendered(display.RenderQuota(st, renderOptions(a)))
			return nil
		})
	},
}
