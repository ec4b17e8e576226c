// Package config holds the bimcheck configuration: YAML file over defaults,
// then BIMCHECK_* environment overrides, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/bimcheck/internal/rules"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// #region types
// Config is the root configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	History HistoryConfig `yaml:"history"`
	RunLog  RunLogConfig  `yaml:"runlog"`
	Rules   RulesConfig   `yaml:"rules"`
	Source  SourceConfig  `yaml:"source"`
	API     APIConfig     `yaml:"api"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// HistoryConfig selects the dashboard state backend.
type HistoryConfig struct {
	Backend string `yaml:"backend" validate:"oneof=sqlite file badger memory"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
}

// RunLogConfig locates the sqlite run log. An empty path disables it.
type RunLogConfig struct {
	Path string `yaml:"path"`
}

// RulesConfig parameterizes the fixed rule set.
type RulesConfig struct {
	NormTokens []string `yaml:"norm_tokens" validate:"min=1,dive,required"`
}

// SourceConfig configures the element source adapters.
type SourceConfig struct {
	MaxFileBytes  int64         `yaml:"max_file_bytes" validate:"gt=0"`
	GRPCAddr      string        `yaml:"grpc_addr"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	Retries       int           `yaml:"retries" validate:"gte=0,lte=10"`
	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gt=0"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// #endregion types

// #region defaults
// DefaultMaxFileBytes is the element file size ceiling (50 MiB).
const DefaultMaxFileBytes = source.DefaultMaxFileBytes

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Backend: "sqlite",
			Path:    "bimcheck_history.db",
		},
		RunLog: RunLogConfig{
			Path: "bimcheck_runs.db",
		},
		Rules: RulesConfig{
			NormTokens: rules.DefaultConfig().NormTokens,
		},
		Source: SourceConfig{
			MaxFileBytes:  DefaultMaxFileBytes,
			GRPCAddr:      "localhost:50061",
			Timeout:       30 * time.Second,
			Retries:       3,
			WatchDebounce: 500 * time.Millisecond,
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

// RuleConfig converts the rules section for rules.NewEvaluator.
func (c *Config) RuleConfig() rules.Config {
	return rules.Config{NormTokens: append([]string(nil), c.Rules.NormTokens...)}
}

// #endregion defaults

// #region validate
// Validate checks struct tags and rule parameters.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, tok := range c.Rules.NormTokens {
		if strings.TrimSpace(tok) == "" {
			return fmt.Errorf("%w: rules.norm_tokens contains a blank token", ErrInvalidConfig)
		}
	}
	return nil
}

// #endregion validate

// #region load
// LoadFromFile reads a YAML file over DefaultConfig. Keys absent from the
// file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Load resolves the effective configuration: defaults, then the file at path
// if non-empty, then environment overrides. The result is validated.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// #endregion load

// #region env
// ApplyEnv overrides fields from BIMCHECK_* variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	envStr(getenv, "BIMCHECK_LOG_LEVEL", &c.Log.Level)
	envStr(getenv, "BIMCHECK_LOG_FORMAT", &c.Log.Format)
	envStr(getenv, "BIMCHECK_HISTORY_BACKEND", &c.History.Backend)
	envStr(getenv, "BIMCHECK_HISTORY_PATH", &c.History.Path)
	envStr(getenv, "BIMCHECK_RUNLOG_PATH", &c.RunLog.Path)
	envStr(getenv, "BIMCHECK_GRPC_ADDR", &c.Source.GRPCAddr)
	envStr(getenv, "BIMCHECK_API_ADDR", &c.API.Addr)

	if v := getenv("BIMCHECK_NORM_TOKENS"); v != "" {
		c.Rules.NormTokens = splitList(v)
	}
	if v := getenv("BIMCHECK_MAX_FILE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: BIMCHECK_MAX_FILE_BYTES: %v", ErrInvalidConfig, err)
		}
		c.Source.MaxFileBytes = n
	}
	return nil
}

func envStr(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion env

// #region merge
// Merge overlays the non-zero fields of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.History.Backend != "" {
		c.History.Backend = other.History.Backend
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}

	if other.RunLog.Path != "" {
		c.RunLog.Path = other.RunLog.Path
	}

	if len(other.Rules.NormTokens) > 0 {
		c.Rules.NormTokens = other.Rules.NormTokens
	}

	if other.Source.MaxFileBytes != 0 {
		c.Source.MaxFileBytes = other.Source.MaxFileBytes
	}
	if other.Source.GRPCAddr != "" {
		c.Source.GRPCAddr = other.Source.GRPCAddr
	}
	if other.Source.Timeout != 0 {
		c.Source.Timeout = other.Source.Timeout
	}
	if other.Source.Retries != 0 {
		c.Source.Retries = other.Source.Retries
	}
	if other.Source.WatchDebounce != 0 {
		c.Source.WatchDebounce = other.Source.WatchDebounce
	}

	if other.API.Addr != "" {
		c.API.Addr = other.API.Addr
	}
}

// #endregion merge
