// Package util provides common utilities for the monitoring service.
package util

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir       string        `mapstructure:"data_dir" validate:"required"`
	DBPath        string        `mapstructure:"db_path" validate:"required"`
	DBBusyTimeout time.Duration `mapstructure:"db_busy_timeout" validate:"gte=0"`

	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSize    int    `mapstructure:"log_max_size" validate:"gte=0"`
	LogMaxBackups int    `mapstructure:"log_max_backups" validate:"gte=0"`
	LogMaxAge     int    `mapstructure:"log_max_age" validate:"gte=0"`
	LogCompress   bool   `mapstructure:"log_compress"`

	// Web server
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	Monit MonitConfig `mapstructure:"monit"`
	Munin MuninConfig `mapstructure:"munin"`

	// Daemon status snapshot interval
	StatusInterval time.Duration `mapstructure:"status_interval" validate:"gt=0"`
}

// MonitConfig configures the report collector.
type MonitConfig struct {
	// LogDir receives archived XML reports and undecodable payloads.
	LogDir string `mapstructure:"log_dir" validate:"required"`
	// ProbeTimeout bounds each dial of a monit httpd; zero disables probing.
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout" validate:"gte=0"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency" validate:"gte=1"`
}

// MuninConfig configures the Munin stats bridge.
type MuninConfig struct {
	RRDPath   string        `mapstructure:"rrd_path" validate:"required"`
	Datafile  string        `mapstructure:"datafile" validate:"required"`
	GraphPath string        `mapstructure:"graph_path"`
	GraphDir  string        `mapstructure:"graph_dir" validate:"required"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

// DatafilePath returns the full path of the munin datafile.
func (m MuninConfig) DatafilePath() string {
	return filepath.Join(m.RRDPath, m.Datafile)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".monitoring")
	return DefaultConfigFor(dataDir)
}

// DefaultConfigFor returns the defaults with every path below dataDir.
func DefaultConfigFor(dataDir string) *Config {
	return &Config{
		DataDir:       dataDir,
		DBPath:        filepath.Join(dataDir, "db", "monit.db"),
		DBBusyTimeout: 10 * time.Second,

		LogLevel:      "info",
		LogFile:       filepath.Join(dataDir, "monitoring.log"),
		LogMaxSize:    50,
		LogMaxBackups: 5,
		LogMaxAge:     30,

		ListenAddr: ":8080",

		Monit: MonitConfig{
			LogDir:           filepath.Join(dataDir, "log", "monit"),
			ProbeTimeout:     3 * time.Second,
			ProbeConcurrency: 8,
		},
		Munin: MuninConfig{
			RRDPath:   "/var/lib/munin",
			Datafile:  "datafile",
			GraphPath: "/usr/share/munin/munin-graph",
			GraphDir:  filepath.Join(dataDir, "htdocs", "munin"),
			CacheTTL:  15 * time.Second,
		},

		StatusInterval: time.Minute,
	}
}

var v *viper.Viper

// LoadConfig loads configuration from file and environment. An empty
// cfgFile searches for config.yaml in the data dir and the working directory.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	v = viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MONITORING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	// Paths derived from data_dir follow it unless set explicitly.
	if dataDir := v.GetString("data_dir"); dataDir != cfg.DataDir {
		cfg = DefaultConfigFor(dataDir)
		setDefaults(v, cfg)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, errors.Wrap(err, "failed to create data dir")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("db_busy_timeout", cfg.DBBusyTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size", cfg.LogMaxSize)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("log_max_age", cfg.LogMaxAge)
	v.SetDefault("log_compress", cfg.LogCompress)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("monit.log_dir", cfg.Monit.LogDir)
	v.SetDefault("monit.probe_timeout", cfg.Monit.ProbeTimeout)
	v.SetDefault("monit.probe_concurrency", cfg.Monit.ProbeConcurrency)
	v.SetDefault("munin.rrd_path", cfg.Munin.RRDPath)
	v.SetDefault("munin.datafile", cfg.Munin.Datafile)
	v.SetDefault("munin.graph_path", cfg.Munin.GraphPath)
	v.SetDefault("munin.graph_dir", cfg.Munin.GraphDir)
	v.SetDefault("munin.cache_ttl", cfg.Munin.CacheTTL)
	v.SetDefault("status_interval", cfg.StatusInterval)
}

var validate = validator.New()

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// WatchConfig re-applies the log level whenever the config file changes.
func WatchConfig() {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("log_level")
		GetLogger().SetLevel(ParseLevel(level))
		Info("Config file %s changed, log level is now %s", e.Name, level)
	})
	v.WatchConfig()
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
