package runtime

import (
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/objbridge/descriptor"
	"github.com/wippyai/objbridge/engine"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/instance"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "OBJBRIDGE_LOG_LEVEL"

// Config holds configuration for runtime creation
type Config struct {
	// Logger overrides the package logger for this runtime.
	Logger *zap.Logger

	// Table is the instance table to record proxies in.
	// nil means the process-wide instance.Global() table.
	Table *instance.Table

	// Registry is the class registry to use. nil creates a private one.
	Registry *descriptor.Registry

	// Engine configures the wazero engine created on the first LoadModule.
	Engine *engine.Config

	// TrackSites appends the caller's file and line to each entry's site tag.
	TrackSites bool
}

// Settings is the [runtime] table of a configuration or manifest file.
type Settings struct {
	LogLevel         string `toml:"log_level"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	TrackSites       bool   `toml:"track_sites"`
	IsolatedTable    bool   `toml:"isolated_table"`
}

type configFile struct {
	Runtime Settings `toml:"runtime"`
}

// LoadConfig reads the [runtime] table of a TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read config "+path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses TOML configuration data.
func ParseConfig(data []byte) (*Config, error) {
	var f configFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.ParseFailed("runtime config", err)
	}
	return f.Runtime.Config()
}

// Config builds a runtime configuration from the settings.
// The EnvLogLevel environment variable takes precedence over LogLevel.
func (s Settings) Config() (*Config, error) {
	cfg := &Config{TrackSites: s.TrackSites}
	if s.IsolatedTable {
		cfg.Table = instance.NewTable()
	}
	if s.MemoryLimitPages > 0 {
		cfg.Engine = &engine.Config{MemoryLimitPages: s.MemoryLimitPages}
	}

	level := s.LogLevel
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	if level != "" {
		l, err := NewLogger(level)
		if err != nil {
			return nil, err
		}
		cfg.Logger = l
	}
	return cfg, nil
}

// NewLogger builds a console logger at the named level
// (debug, info, warn, error).
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Value(level).
			Cause(err).
			Detail("invalid log level").
			Build()
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}
