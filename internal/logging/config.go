// Package logging builds the zerolog logger used by the host binaries.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel   = "OTPLAT_LOG_LEVEL"
	EnvLogNoColor = "OTPLAT_LOG_NOCOLOR"
	EnvLogFile    = "OTPLAT_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config describes where and how much to log.
type Config struct {
	Level     zerolog.Level
	NoColor   bool
	Timestamp bool
	// File, when set, receives JSON lines in addition to the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{MaxSizeMB: 10, MaxBackups: 3}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// Configure returns a logger for profile after applying environment
// overrides. The returned closer flushes and closes the log file.
func Configure(profile Profile, app string) (zerolog.Logger, io.Closer) {
	cfg := DefaultConfig(profile)
	ApplyEnvOverrides(&cfg)
	return New(cfg, os.Stderr, app)
}

// New builds a logger writing to console and, if cfg.File is set, to a
// rotating file.
func New(cfg Config, console io.Writer, app string) (zerolog.Logger, io.Closer) {
	cw := zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	var (
		out    io.Writer = cw
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = zerolog.MultiLevelWriter(cw, lj)
		closer = lj
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp || cfg.File != "" {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger(), closer
}

func ApplyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if f := strings.TrimSpace(os.Getenv(EnvLogFile)); f != "" {
		cfg.File = f
	}
}

// ParseLevel accepts the usual level names plus a few aliases for
// disabling output.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
