package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/pipeline"
)

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyse access logs and write reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cfgFile, logLevel)
		},
	}

	// Source flags
	cmd.Flags().String("log-dir", "", "directory holding the access logs")
	cmd.Flags().String("file", "", `analyse this file instead of searching the log dir ("-" reads stdin)`)
	cmd.Flags().Bool("all", false, "analyse every matching log, not only the latest")
	cmd.Flags().Bool("watch", false, "keep running and analyse new logs as they appear")
	cmd.Flags().Int("workers", 0, "number of logs analysed in parallel")

	// Analysis flags
	cmd.Flags().Bool("true-max", false, "report the largest duration as time_max")
	cmd.Flags().Float64("max-error-ratio", 0, "fail a log whose share of unparsable lines exceeds this (0 disables)")

	// Report flags
	cmd.Flags().String("report-dir", "", "directory reports are written to")
	cmd.Flags().Int("report-size", 0, "number of URLs kept in a report (0 keeps all)")
	cmd.Flags().String("order", "", "row order (time_sum, emission)")
	cmd.Flags().Bool("overwrite", false, "replace reports that already exist")

	// Sink flags
	cmd.Flags().Bool("stdout", false, "also print reports to stdout")
	cmd.Flags().String("format", "", "stdout format (text, json)")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := loadConfig(cmd, *cfgFile)
	if err != nil {
		return err
	}

	log := SetupLogging(effectiveLevel(*logLevel, cfg), cfg.Log)

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	input, _ := cmd.Flags().GetString("file")
	log.Infof("starting log analyzer: dir=%s mode=%s workers=%d watch=%t sinks=%d",
		cfg.Source.Dir, cfg.Source.Mode, cfg.Source.Workers, cfg.Source.Watch, p.SinkCount())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Source.Watch && input == "" {
		if *cfgFile != "" {
			startConfigWatcher(ctx, cmd, *cfgFile, p, log)
		}
		go handleReload(ctx, cmd, *cfgFile, p, log)
	}

	if err := p.Run(ctx, input); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline error: %w", err)
	}

	log.Info("log analyzer stopped")
	return nil
}

// loadConfig loads the configuration, applies flag overrides and validates
// the result.
func loadConfig(cmd *cobra.Command, cfgFile string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func effectiveLevel(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.LogLevel
}

func startConfigWatcher(ctx context.Context, cmd *cobra.Command, cfgFile string, p *pipeline.Pipeline, log logger.ILogger) {
	watcher := config.NewConfigWatcher(cfgFile, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", cfgFile)

	go func() {
		for {
			select {
			case newCfg := <-watcher.Changes():
				applyCLIOverrides(cmd, newCfg)
				if err := p.Reconfigure(newCfg); err != nil {
					log.Errorf("reconfigure failed: %v", err)
				}
			case err := <-watcher.Errors():
				log.Errorf("config watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// handleReload reloads the configuration on SIGHUP.
func handleReload(ctx context.Context, cmd *cobra.Command, cfgFile string, p *pipeline.Pipeline, log logger.ILogger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			log.Info("received SIGHUP, reloading config")
			newCfg, err := loadConfig(cmd, cfgFile)
			if err != nil {
				log.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := p.Reconfigure(newCfg); err != nil {
				log.Errorf("reconfigure failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// applyCLIOverrides copies explicitly set flags over cfg.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if v, _ := flags.GetString("log-dir"); v != "" {
		cfg.Source.Dir = v
	}
	if v, _ := flags.GetBool("all"); v {
		cfg.Source.Mode = config.ModeAll
	}
	if v, _ := flags.GetBool("watch"); v {
		cfg.Source.Watch = true
	}
	if flags.Changed("workers") {
		cfg.Source.Workers, _ = flags.GetInt("workers")
	}
	if v, _ := flags.GetBool("true-max"); v {
		cfg.Analysis.TrueMax = true
	}
	if flags.Changed("max-error-ratio") {
		cfg.Analysis.MaxErrorRatio, _ = flags.GetFloat64("max-error-ratio")
	}
	if v, _ := flags.GetString("report-dir"); v != "" {
		cfg.Report.Dir = v
	}
	if flags.Changed("report-size") {
		cfg.Report.Size, _ = flags.GetInt("report-size")
	}
	if v, _ := flags.GetString("order"); v != "" {
		cfg.Report.Order = v
	}
	if v, _ := flags.GetBool("overwrite"); v {
		cfg.Report.Overwrite = true
	}
	if v, _ := flags.GetBool("stdout"); v {
		cfg.Sinks.Stdout.Enabled = true
	}
	if v, _ := flags.GetString("format"); v != "" {
		cfg.Sinks.Stdout.Format = v
	}
}
