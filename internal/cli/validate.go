package cli

import (
	"fmt"
	"io"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/pipeline"
)

// NewValidateCmd creates the validate command. It prints the effective
// configuration as YAML.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			// Create a silent logger for validation (discards output)
			log := logger.NewConsoleLogger(io.Discard)

			p, err := pipeline.New(cfg, log)
			if err != nil {
				return fmt.Errorf("pipeline configuration error: %w", err)
			}

			return printConfig(cmd.OutOrStdout(), cfg, p.SinkCount())
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, sinks int) error {
	fmt.Fprintf(w, "# configuration valid, %d sinks enabled\n", sinks)

	out := *cfg
	out.Sinks.Elasticsearch.Password = redact(out.Sinks.Elasticsearch.Password)
	out.Sinks.MySQL.Password = redact(out.Sinks.MySQL.Password)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
