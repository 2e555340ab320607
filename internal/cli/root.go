package cli

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/config"
	"github.com/fixturegate/fixturegate/internal/display"
	"github.com/fixturegate/fixturegate/internal/logging"
)

// version is injected at build time via -ldflags.
var version = "dev"

var (
	jsonOutput bool
	noColor    bool
	verbose    bool
	quiet      bool
	timestamps bool
)

var rootCmd = &cobra.Command{
	Use:          "fixturegate",
	Short:        "Serve football fixtures within a fixed daily upstream budget",
	Long:         "fixturegate caches api-sports fixtures, standings and logos and refreshes them through a gate that enforces the daily call budget, a request cooldown and one fetch per date per day.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose && quiet {
			verbose = false
		}
		l := newConfiguredLogger()
		ctx := logging.WithLogger(cmd.Context(), l)
		cmd.SetContext(ctx)

		if err := config.LoadDotenv(); err != nil {
			l.Warn("could not read .env", "err", err)
		}
		// Load config from disk so malformed files surface a warning.
		if _, err := config.Reload(); err != nil {
			l.Warn("config file is malformed, using defaults", "err", err)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			out("fixturegate %s\n", version)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Minimal output")
	rootCmd.PersistentFlags().BoolVar(&timestamps, "log-timestamps", false, "Log at info level with timestamps")
	rootCmd.Flags().Bool("version", false, "Show version and exit")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(windowCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with the given context.
// Commands access it via cmd.Context().
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// interactive reports whether commands may prompt. Tests replace it.
var interactive = func() bool {
	return isTerminal() && !jsonOutput && !quiet
}

// renderOptions builds display options for the current flags.
func renderOptions(a *app) display.Options {
	return display.Options{
		NoColor:  noColor || !isTerminal(),
		Location: a.cal.Location(),
		Now:      a.cal.Now(),
		Width:    display.TerminalWidth(outWriter),
	}
}

// withApp opens the service graph for one command and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, config.Get(), logging.FromContext(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}
