package cli

import (
	"io"
	"os"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
)

// SetupLogging creates and configures a logger with the specified level.
// When cfg.File is set, output is also written to a rotated log file.
// Returns the configured logger for dependency injection.
func SetupLogging(level string, cfg config.LogConfig) logger.ILogger {
	log := logger.NewConsoleLogger(logOutput(os.Stderr, cfg))

	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(logger.LevelTrace)
	case "debug":
		log.SetLevel(logger.LevelDebug)
	case "warn", "warning":
		log.SetLevel(logger.LevelWarning)
	case "error":
		log.SetLevel(logger.LevelError)
	default:
		log.SetLevel(logger.LevelInfo)
	}

	// Set as default logger for global access if needed
	logger.SetDefaultLogger(log)
	logger.SetCtxFallbackLogger(log)

	return log
}

// logOutput tees console output into a lumberjack-rotated file.
func logOutput(console io.Writer, cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return console
	}
	return io.MultiWriter(console, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}
