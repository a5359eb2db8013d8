// Package config provides configuration loading with layered overrides.
// Load order: defaults -> .env -> YAML/JSON file -> environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of environment overrides, e.g. LOG_ANALYZER_REPORT_SIZE.
const EnvPrefix = "LOG_ANALYZER_"

// Source modes.
const (
	ModeLatest = "latest"
	ModeAll    = "all"
)

// DefaultPrecision keeps report values exact. Rounding is opt-in through
// report.precision since it breaks the count_perc and time_perc sums.
const DefaultPrecision = -1

// Report orderings.
const (
	OrderTimeSum  = "time_sum"
	OrderEmission = "emission"
)

// Config is the root configuration structure for the log analyzer.
type Config struct {
	LogLevel string         `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Log      LogConfig      `koanf:"log" yaml:"log" json:"log"`
	Parser   ParserConfig   `koanf:"parser" yaml:"parser" json:"parser"`
	Source   SourceConfig   `koanf:"source" yaml:"source" json:"source"`
	Analysis AnalysisConfig `koanf:"analysis" yaml:"analysis" json:"analysis"`
	Report   ReportConfig   `koanf:"report" yaml:"report" json:"report"`
	Sinks    SinkConfig     `koanf:"sinks" yaml:"sinks" json:"sinks"`
}

// LogConfig controls where the analyzer's own log output goes.
// An empty File keeps logging on stderr only.
type LogConfig struct {
	File       string `koanf:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `koanf:"maxsizemb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `koanf:"maxbackups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `koanf:"maxagedays" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `koanf:"compress" yaml:"compress" json:"compress"`
}

// ParserConfig configures the access log line parser.
type ParserConfig struct {
	TimeLayout string `koanf:"timelayout" yaml:"time_layout" json:"time_layout"`
}

// SourceConfig configures log discovery.
type SourceConfig struct {
	Dir     string   `koanf:"dir" yaml:"dir" json:"dir"`
	Pattern string   `koanf:"pattern" yaml:"pattern" json:"pattern"` // regex, first group is the YYYYMMDD date
	Exclude []string `koanf:"exclude" yaml:"exclude" json:"exclude"`
	Mode    string   `koanf:"mode" yaml:"mode" json:"mode"` // "latest" or "all"
	Workers int      `koanf:"workers" yaml:"workers" json:"workers"`
	Watch   bool     `koanf:"watch" yaml:"watch" json:"watch"`
}

// AnalysisConfig tunes the aggregation.
type AnalysisConfig struct {
	// TrueMax reports the real maximum duration as time_max instead of the
	// last element of the descending sort.
	TrueMax bool `koanf:"truemax" yaml:"true_max" json:"true_max"`
	// MaxErrorRatio fails a file whose parse error ratio exceeds it. 0 disables the check.
	MaxErrorRatio float64 `koanf:"maxerrorratio" yaml:"max_error_ratio" json:"max_error_ratio"`
}

// ReportConfig controls report formatting.
type ReportConfig struct {
	Size      int    `koanf:"size" yaml:"size" json:"size"` // 0 keeps every URL
	Order     string `koanf:"order" yaml:"order" json:"order"`
	Precision int    `koanf:"precision" yaml:"precision" json:"precision"` // negative keeps exact values
	Dir       string `koanf:"dir" yaml:"dir" json:"dir"`
	Template  string `koanf:"template" yaml:"template" json:"template"`
	Overwrite bool   `koanf:"overwrite" yaml:"overwrite" json:"overwrite"`
}

// SinkConfig holds configuration for all report sinks.
type SinkConfig struct {
	File          FileSinkConfig          `koanf:"file" yaml:"file" json:"file"`
	Stdout        StdoutSinkConfig        `koanf:"stdout" yaml:"stdout" json:"stdout"`
	Elasticsearch ElasticsearchSinkConfig `koanf:"elasticsearch" yaml:"elasticsearch" json:"elasticsearch"`
	Loki          LokiSinkConfig          `koanf:"loki" yaml:"loki" json:"loki"`
	VictoriaLogs  VictoriaLogsSinkConfig  `koanf:"victorialogs" yaml:"victorialogs" json:"victorialogs"`
	MySQL         MySQLSinkConfig         `koanf:"mysql" yaml:"mysql" json:"mysql"`
}

// FileSinkConfig writes reports into Report.Dir.
type FileSinkConfig struct {
	Enabled bool     `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Formats []string `koanf:"formats" yaml:"formats" json:"formats"` // "html", "json"
}

// StdoutSinkConfig prints reports to standard output.
type StdoutSinkConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Format  string `koanf:"format" yaml:"format" json:"format"` // "json" or "text"
}

// ElasticsearchSinkConfig indexes one document per report row.
type ElasticsearchSinkConfig struct {
	Enabled       bool          `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Addresses     []string      `koanf:"addresses" yaml:"addresses" json:"addresses"`
	Index         string        `koanf:"index" yaml:"index" json:"index"`
	Username      string        `koanf:"username" yaml:"username" json:"username"`
	Password      string        `koanf:"password" yaml:"password" json:"password"`
	FlushInterval time.Duration `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// LokiSinkConfig pushes report rows to Grafana Loki.
type LokiSinkConfig struct {
	Enabled  bool              `koanf:"enabled" yaml:"enabled" json:"enabled"`
	URL      string            `koanf:"url" yaml:"url" json:"url"`
	TenantID string            `koanf:"tenantid" yaml:"tenant_id" json:"tenant_id"`
	Labels   map[string]string `koanf:"labels" yaml:"labels" json:"labels"`
	Timeout  time.Duration     `koanf:"timeout" yaml:"timeout" json:"timeout"`
}

// VictoriaLogsSinkConfig pushes report rows to VictoriaLogs.
type VictoriaLogsSinkConfig struct {
	Enabled bool          `koanf:"enabled" yaml:"enabled" json:"enabled"`
	URL     string        `koanf:"url" yaml:"url" json:"url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
}

// MySQLSinkConfig stores report rows in a MySQL table.
type MySQLSinkConfig struct {
	Enabled  bool          `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Host     string        `koanf:"host" yaml:"host" json:"host"`
	Port     int           `koanf:"port" yaml:"port" json:"port"`
	User     string        `koanf:"user" yaml:"user" json:"user"`
	Password string        `koanf:"password" yaml:"password" json:"password"`
	Database string        `koanf:"database" yaml:"database" json:"database"`
	Table    string        `koanf:"table" yaml:"table" json:"table"`
	Params   string        `koanf:"params" yaml:"params" json:"params"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Parser: ParserConfig{
			TimeLayout: "02/Jan/2006:15:04:05 -0700",
		},
		Source: SourceConfig{
			Dir:     "./log",
			Pattern: `^nginx-access-ui\.log-(\d{8})(\.gz)?$`,
			Mode:    ModeLatest,
			Workers: 1,
		},
		Report: ReportConfig{
			Size:      1000,
			Order:     OrderTimeSum,
			Precision: DefaultPrecision,
			Dir:       "./reports",
		},
		Sinks: SinkConfig{
			File: FileSinkConfig{
				Enabled: true,
				Formats: []string{"html"},
			},
			Stdout: StdoutSinkConfig{
				Enabled: false,
				Format:  "text",
			},
			Elasticsearch: ElasticsearchSinkConfig{
				Index:         "log-analyzer",
				FlushInterval: 5 * time.Second,
			},
			Loki: LokiSinkConfig{
				Timeout: 10 * time.Second,
			},
			VictoriaLogs: VictoriaLogsSinkConfig{
				Timeout: 10 * time.Second,
			},
			MySQL: MySQLSinkConfig{
				Host:     "127.0.0.1",
				Port:     3306,
				User:     "root",
				Database: "logana",
				Table:    "url_stats",
				Params:   "parseTime=true&charset=utf8mb4",
				Timeout:  30 * time.Second,
			},
		},
	}
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> .env -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	// .env only seeds the environment; variables already set win.
	_ = godotenv.Load()

	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		for _, path := range []string{"./config.yaml", "/etc/log-analyzer/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case ModeLatest, ModeAll:
	default:
		return fmt.Errorf("source.mode: unknown mode %q", c.Source.Mode)
	}
	if c.Source.Workers < 1 {
		return fmt.Errorf("source.workers: must be at least 1, got %d", c.Source.Workers)
	}
	if c.Source.Pattern == "" {
		return fmt.Errorf("source.pattern: must not be empty")
	}
	if c.Parser.TimeLayout == "" {
		return fmt.Errorf("parser.timelayout: must not be empty")
	}
	if c.Analysis.MaxErrorRatio < 0 || c.Analysis.MaxErrorRatio > 1 {
		return fmt.Errorf("analysis.maxerrorratio: must be within [0, 1], got %v", c.Analysis.MaxErrorRatio)
	}
	if c.Report.Size < 0 {
		return fmt.Errorf("report.size: must not be negative, got %d", c.Report.Size)
	}
	switch c.Report.Order {
	case OrderTimeSum, OrderEmission:
	default:
		return fmt.Errorf("report.order: unknown order %q", c.Report.Order)
	}
	if c.Sinks.File.Enabled {
		if c.Report.Dir == "" {
			return fmt.Errorf("report.dir: required by the file sink")
		}
		for _, f := range c.Sinks.File.Formats {
			if !slices.Contains([]string{"html", "json"}, f) {
				return fmt.Errorf("sinks.file.formats: unknown format %q", f)
			}
		}
	}
	return nil
}
