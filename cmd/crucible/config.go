package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the crucible configuration file
// (~/.config/crucible/config.yaml). Numeric fields are pointers so "not
// set" is distinguishable from zero values.
type Config struct {
	Device   string `yaml:"device"`
	Scheme   string `yaml:"scheme"`
	Strategy string `yaml:"strategy"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Bench defaults
	BenchRows *int64 `yaml:"bench_rows"`
	BenchCols *int64 `yaml:"bench_cols"`
	BenchRuns *int64 `yaml:"bench_runs"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crucible", "config.yaml")
}

// applyCommonConfig applies config file defaults for the shared flags when
// the corresponding CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyQuantizeConfig applies config file defaults to quantize command
// variables.
func applyQuantizeConfig(c *cli.Command, cfg Config, scheme *string) {
	applyCommonConfig(c, cfg)
	if cfg.Scheme != "" && !c.IsSet("scheme") {
		*scheme = cfg.Scheme
	}
}

// applyMatMulConfig applies config file defaults to matmul command
// variables.
func applyMatMulConfig(c *cli.Command, cfg Config, strategy *string) {
	applyCommonConfig(c, cfg)
	if cfg.Strategy != "" && !c.IsSet("strategy") {
		*strategy = cfg.Strategy
	}
}

// applyBenchConfig applies config file defaults to bench command variables.
func applyBenchConfig(c *cli.Command, cfg Config, rows, cols, runs *int64) {
	applyCommonConfig(c, cfg)
	if cfg.BenchRows != nil && !c.IsSet("rows") {
		*rows = *cfg.BenchRows
	}
	if cfg.BenchCols != nil && !c.IsSet("cols") {
		*cols = *cfg.BenchCols
	}
	if cfg.BenchRuns != nil && !c.IsSet("runs") {
		*runs = *cfg.BenchRuns
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyCommonConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
