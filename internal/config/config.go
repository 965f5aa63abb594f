// Package config loads the client configuration: config file, GATHER_*
// environment variables, and code defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is everything the composition root needs to build the app.
type Config struct {
	// ServerURL is the base URL of the remote service.
	ServerURL string `mapstructure:"server_url"`

	// CachePath is the SQLite cache location.
	CachePath string `mapstructure:"cache_path"`

	// CredStore selects the credential backend: "keyring" or "file".
	// "auto" (the default) tries the keyring and falls back to file.
	CredStore string `mapstructure:"cred_store"`

	// CredFile is the file-backend location.
	CredFile string `mapstructure:"cred_file"`

	// RequestTimeoutSeconds bounds one HTTP round trip.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// NetworkEnabled and CacheEnabled toggle the repository sources.
	NetworkEnabled bool `mapstructure:"network_enabled"`
	CacheEnabled   bool `mapstructure:"cache_enabled"`

	// MonitorPort is the WebSocket monitor listen port.
	MonitorPort int `mapstructure:"monitor_port"`

	// LogFile, when set, sends logs to a rotating file instead of
	// stderr.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "gather"), nil
}

// Load reads config.yaml from the gather config directory (or $GATHER_CONFIG_DIR)
// plus GATHER_* environment variables. A missing config file is fine.
func Load() (*Config, error) {
	dir := os.Getenv("GATHER_CONFIG_DIR")
	if dir == "" {
		var err error
		dir, err = Dir()
		if err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("GATHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("cache_path", filepath.Join(dir, "cache.db"))
	v.SetDefault("cred_store", "auto")
	v.SetDefault("cred_file", filepath.Join(dir, "credentials.json"))
	v.SetDefault("request_timeout_seconds", 15)
	v.SetDefault("network_enabled", true)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("monitor_port", 8808)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a prefixed logger writing to stderr or, when
// configured, a rotating log file.
func (c *Config) NewLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if c.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}
