package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for ShardScope
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	// StateFile is an optional cluster state snapshot loaded at startup.
	// Snapshots can also be installed at runtime through the API.
	StateFile string `mapstructure:"state_file"`

	// Cluster configuration
	Cluster ClusterConfig `mapstructure:"cluster"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// History configuration
	History HistoryConfig `mapstructure:"history"`
}

// ClusterConfig defines node registry and health checking configuration
type ClusterConfig struct {
	// HealthCheckInterval is the seconds between node health probe rounds.
	// Zero disables the background checker.
	HealthCheckInterval int `mapstructure:"health_check_interval"`

	// DBPath overrides the registry database location. Defaults to
	// <data_dir>/registry.db.
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Path     string `mapstructure:"path"`
	Interval int    `mapstructure:"interval"`
}

// HistoryConfig defines explain history retention configuration
type HistoryConfig struct {
	Enable        bool   `mapstructure:"enable"`
	RetentionDays int    `mapstructure:"retention_days"`
	DBPath        string `mapstructure:"db_path"`
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("SHARDSCOPE")
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate and setup defaults
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("listen", ":9400")
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")

	// TLS defaults
	v.SetDefault("enable_tls", false)

	// Cluster defaults
	v.SetDefault("cluster.health_check_interval", 30)

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.interval", 10)

	// History defaults
	v.SetDefault("history.enable", true)
	v.SetDefault("history.retention_days", 30)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"data-dir":   "data_dir",
		"log-level":  "log_level",
		"state-file": "state_file",
		"enable-tls": "enable_tls",
		"tls-cert":   "cert_file",
		"tls-key":    "key_file",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	// Validate that data_dir is configured (either via flag, config file, or env var)
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or SHARDSCOPE_DATA_DIR environment variable")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Cluster.DBPath == "" {
		cfg.Cluster.DBPath = filepath.Join(cfg.DataDir, "registry.db")
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.DataDir, "history")
	}

	if cfg.Cluster.HealthCheckInterval < 0 {
		return fmt.Errorf("cluster.health_check_interval must not be negative")
	}
	if cfg.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative")
	}

	// Validate TLS configuration
	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
		}
	}

	return nil
}
