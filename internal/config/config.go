// Package config loads this module's configuration from a YAML file,
// flag defaults, and SILK_*-prefixed environment overrides, applied in
// that order so later sources win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// Config carries the generation window, sensor/flowtype roles, cache
// and subprocess tuning, plus the ambient settings (log level/format,
// metrics address, trace endpoint) needed to run the pipeline.
type Config struct {
	RootDataDir    string        `yaml:"root_data_dir"`
	SiteConfigFile string        `yaml:"site_config_file"`
	StartTime      time.Time     `yaml:"-"`
	StartTimeRaw   string        `yaml:"start_time"`
	EndTime        time.Time     `yaml:"-"`
	EndTimeRaw     string        `yaml:"end_time"`
	TimeStep       time.Duration `yaml:"time_step"`
	EventsPerStep  int           `yaml:"events_per_step"`
	Seed           int64         `yaml:"seed"`
	NumSubprocesses int          `yaml:"num_subprocesses"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
	FileCacheSize  int           `yaml:"file_cache_size"`

	RoleIn     string `yaml:"role_in"`
	RoleInweb  string `yaml:"role_inweb"`
	RoleOut    string `yaml:"role_out"`
	RoleOutweb string `yaml:"role_outweb"`

	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	MetricsAddr   string `yaml:"metrics_addr"`
	TraceEndpoint string `yaml:"trace_endpoint"`
}

const envPrefix = "SILK_"

// Load reads configFile (if non-empty), applies defaults, then
// applies SILK_*-prefixed environment overrides, and validates the
// result.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			logrus.WithError(err).WithField("path", configFile).
				Warn("failed to load configuration file; continuing with defaults")
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := parseTimes(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.RootDataDir == "" {
		cfg.RootDataDir = "./data"
	}
	if cfg.TimeStep == 0 {
		cfg.TimeStep = time.Second
	}
	if cfg.EventsPerStep == 0 {
		cfg.EventsPerStep = 1
	}
	if cfg.NumSubprocesses == 0 {
		cfg.NumSubprocesses = 0 // 0 means "derive from host CPU topology"
	}
	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = 5 * time.Minute
	}
	if cfg.FileCacheSize == 0 {
		cfg.FileCacheSize = 64
	}
	if cfg.RoleIn == "" {
		cfg.RoleIn = "in"
	}
	if cfg.RoleInweb == "" {
		cfg.RoleInweb = "inweb"
	}
	if cfg.RoleOut == "" {
		cfg.RoleOut = "out"
	}
	if cfg.RoleOutweb == "" {
		cfg.RoleOutweb = "outweb"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RootDataDir, "ROOT_DATA_DIR")
	overrideString(&cfg.SiteConfigFile, "SITE_CONFIG_FILE")
	overrideString(&cfg.StartTimeRaw, "START_TIME")
	overrideString(&cfg.EndTimeRaw, "END_TIME")
	overrideDuration(&cfg.TimeStep, "TIME_STEP")
	overrideInt(&cfg.EventsPerStep, "EVENTS_PER_STEP")
	overrideInt64(&cfg.Seed, "SEED")
	overrideInt(&cfg.NumSubprocesses, "NUM_SUBPROCESSES")
	overrideDuration(&cfg.FlushTimeout, "FLUSH_TIMEOUT")
	overrideInt(&cfg.FileCacheSize, "FILE_CACHE_SIZE")
	overrideString(&cfg.RoleIn, "ROLE_IN")
	overrideString(&cfg.RoleInweb, "ROLE_INWEB")
	overrideString(&cfg.RoleOut, "ROLE_OUT")
	overrideString(&cfg.RoleOutweb, "ROLE_OUTWEB")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.LogFormat, "LOG_FORMAT")
	overrideString(&cfg.MetricsAddr, "METRICS_ADDR")
	overrideString(&cfg.TraceEndpoint, "TRACE_ENDPOINT")
}

func overrideString(field *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*field = v
	}
}

func overrideInt(field *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*field = n
		}
	}
}

func overrideInt64(field *int64, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*field = n
		}
	}
}

func overrideDuration(field *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*field = d
		}
	}
}

func parseTimes(cfg *Config) error {
	if cfg.StartTimeRaw != "" {
		t, err := time.Parse(time.RFC3339, cfg.StartTimeRaw)
		if err != nil {
			return apperr.New(apperr.InvalidArgument, "config", "parseTimes", err)
		}
		cfg.StartTime = t
	}
	if cfg.EndTimeRaw != "" {
		t, err := time.Parse(time.RFC3339, cfg.EndTimeRaw)
		if err != nil {
			return apperr.New(apperr.InvalidArgument, "config", "parseTimes", err)
		}
		cfg.EndTime = t
	}
	return nil
}

// Validate checks range/ordering invariants on cfg. Callers should
// treat a non-nil error as a usage error (exit status 2).
func Validate(cfg *Config) error {
	if cfg.FileCacheSize < 4 || cfg.FileCacheSize > 65535 {
		return apperr.New(apperr.InvalidArgument, "config", "validate",
			fmt.Errorf("file_cache_size %d out of range [4, 65535]", cfg.FileCacheSize))
	}
	if !cfg.StartTime.IsZero() && !cfg.EndTime.IsZero() && cfg.EndTime.Before(cfg.StartTime) {
		return apperr.New(apperr.InvalidArgument, "config", "validate",
			fmt.Errorf("end_time before start_time"))
	}
	if cfg.NumSubprocesses < 0 {
		return apperr.New(apperr.InvalidArgument, "config", "validate",
			fmt.Errorf("num_subprocesses must be >= 0"))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return apperr.New(apperr.InvalidArgument, "config", "validate",
			fmt.Errorf("log_format must be \"text\" or \"json\""))
	}
	return nil
}
