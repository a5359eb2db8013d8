package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the command tree.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "log-analyzer",
		Short: "Builds per-URL request time reports from nginx access logs",
		Long: `log-analyzer reads nginx access logs in the ui_short format, groups
requests by URL and reports how much request time each URL accounts for.

By default the most recent dated log in the log directory is analysed and an
HTML report named after the log date is written to the report directory. A
log whose report already exists is skipped.

Reports can additionally be delivered to stdout, Elasticsearch, Loki,
VictoriaLogs and MySQL. In watch mode new logs are analysed as they appear
and configuration changes are applied without a restart.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides log_level")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewVersionCmd(),
	)

	return rootCmd
}
