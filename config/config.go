// Package config loads server settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alexispurslane/tmpl-lsp/telemetry"
)

// Environment variables read by FromEnv.
const (
	EnvLogLevel    = "TMPL_LSP_LOG_LEVEL"
	EnvTemplates   = "TMPL_LSP_TEMPLATES"
	EnvOtelTraces  = "TMPL_LSP_OTEL_TRACES"
	EnvOtelMetrics = "TMPL_LSP_OTEL_METRICS"
)

type Telemetry struct {
	Traces  bool `toml:"traces"`
	Metrics bool `toml:"metrics"`
}

type Config struct {
	LogLevel              string    `toml:"log_level"`
	TemplateDirs          []string  `toml:"template_dirs"`
	MaxConcurrentResolves int       `toml:"max_concurrent_resolves"`
	ResolveTimeout        Duration  `toml:"resolve_timeout"`
	StrictEdits           bool      `toml:"strict_edits"`
	SemanticDiff          bool      `toml:"semantic_diff"`
	WordsMinLength        int       `toml:"words_min_length"`
	Telemetry             Telemetry `toml:"telemetry"`
}

// Duration decodes TOML strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		LogLevel:              "INFO",
		MaxConcurrentResolves: 4,
		ResolveTimeout:        Duration{5 * time.Second},
		WordsMinLength:        3,
	}
}

// ParseError reports a malformed config file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			line, col := derr.Position()
			return cfg, &ParseError{Path: path, Line: line, Column: col, Err: err}
		}
		return cfg, &ParseError{Path: path, Err: err}
	}
	for i, dir := range cfg.TemplateDirs {
		cfg.TemplateDirs[i] = ExpandHome(dir)
	}
	return cfg, nil
}

// FromEnv applies environment overrides. getenv is usually os.Getenv.
func (c *Config) FromEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvTemplates); v != "" {
		for _, dir := range filepath.SplitList(v) {
			if dir = strings.TrimSpace(dir); dir != "" {
				c.TemplateDirs = append(c.TemplateDirs, ExpandHome(dir))
			}
		}
	}
	c.Telemetry.Traces = telemetry.EnvBool(getenv(EnvOtelTraces), c.Telemetry.Traces)
	c.Telemetry.Metrics = telemetry.EnvBool(getenv(EnvOtelMetrics), c.Telemetry.Metrics)
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a stderr logger at the configured level; stdout may be
// the protocol stream.
func (c Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.Level())
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.Sampling = nil
	return zc.Build()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
