package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
)

func TestApplyCLIOverrides(t *testing.T) {
	var cfgFile, logLevel string
	cmd := NewRunCmd(&cfgFile, &logLevel)
	require.NoError(t, cmd.ParseFlags([]string{
		"--log-dir", "/var/log/nginx",
		"--report-dir", "/srv/reports",
		"--report-size", "0",
		"--all",
		"--workers", "4",
		"--true-max",
		"--stdout",
		"--format", "json",
		"--order", "emission",
	}))

	cfg := &config.Config{}
	cfg.Report.Size = 1000
	applyCLIOverrides(cmd, cfg)

	assert.Equal(t, "/var/log/nginx", cfg.Source.Dir)
	assert.Equal(t, config.ModeAll, cfg.Source.Mode)
	assert.Equal(t, 4, cfg.Source.Workers)
	assert.True(t, cfg.Analysis.TrueMax)
	assert.Equal(t, "/srv/reports", cfg.Report.Dir)
	assert.Equal(t, 0, cfg.Report.Size, "an explicit 0 keeps every URL")
	assert.Equal(t, config.OrderEmission, cfg.Report.Order)
	assert.True(t, cfg.Sinks.Stdout.Enabled)
	assert.Equal(t, "json", cfg.Sinks.Stdout.Format)
	assert.False(t, cfg.Source.Watch)
	assert.False(t, cfg.Report.Overwrite)
}

func TestApplyCLIOverrides_UnsetFlagsKeepConfig(t *testing.T) {
	var cfgFile, logLevel string
	cmd := NewRunCmd(&cfgFile, &logLevel)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := &config.Config{}
	cfg.Source.Workers = 2
	cfg.Report.Size = 50
	cfg.Analysis.MaxErrorRatio = 0.2
	applyCLIOverrides(cmd, cfg)

	assert.Equal(t, 2, cfg.Source.Workers)
	assert.Equal(t, 50, cfg.Report.Size)
	assert.Equal(t, 0.2, cfg.Analysis.MaxErrorRatio)
}

func TestEffectiveLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn"}
	assert.Equal(t, "debug", effectiveLevel("debug", cfg))
	assert.Equal(t, "warn", effectiveLevel("", cfg))
}

func TestPrintConfig_RedactsSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.Dir = "./log"
	cfg.Sinks.MySQL.Password = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, cfg, 2))

	out := buf.String()
	assert.Contains(t, out, "# configuration valid, 2 sinks enabled")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, "hunter2", cfg.Sinks.MySQL.Password, "caller's config is untouched")

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "./log", decoded.Source.Dir)
	assert.Equal(t, "********", decoded.Sinks.MySQL.Password)
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "log-analyzer dev\n", buf.String())
}
