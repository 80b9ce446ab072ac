// Package config loads tally configuration from YAML, validated against
// an embedded CUE schema so malformed files fail with positions and
// constraint messages instead of zero-valued surprises.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full tally configuration.
type Config struct {
	DB     DBConfig     `json:"db" yaml:"db"`
	Gate   GateConfig   `json:"gate" yaml:"gate"`
	Backup BackupConfig `json:"backup" yaml:"backup"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// DBConfig locates the SQLite store.
type DBConfig struct {
	Path string `json:"path" yaml:"path"`
}

// GateConfig tunes the write gate.
type GateConfig struct {
	WarnThreshold int `json:"warn_threshold" yaml:"warn_threshold"`
	MaxRetries    int `json:"max_retries" yaml:"max_retries"`
	BaseDelayMS   int `json:"base_delay_ms" yaml:"base_delay_ms"`
}

// BackupConfig controls snapshot retention for explicit pruning.
type BackupConfig struct {
	Keep int `json:"keep" yaml:"keep"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		DB:     DBConfig{Path: "tally.db"},
		Gate:   GateConfig{WarnThreshold: 5, MaxRetries: 3, BaseDelayMS: 50},
		Backup: BackupConfig{Keep: 5},
		Log:    LogConfig{Level: "info"},
	}
}

// BaseDelay returns the gate's backoff base as a duration.
func (g GateConfig) BaseDelay() time.Duration {
	return time.Duration(g.BaseDelayMS) * time.Millisecond
}

// SlogLevel maps the configured level onto slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads, validates, and decodes the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML against the embedded schema and decodes it.
// Schema defaults fill any omitted fields.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return Config{}, fmt.Errorf("lookup config schema: %w", err)
	}

	unified := def.Unify(cctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
