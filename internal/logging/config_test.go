package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
	}
}

func TestDefaultConfig(t *testing.T) {
	rt := DefaultConfig(ProfileRuntime)
	assert.Equal(t, zerolog.InfoLevel, rt.Level)
	assert.True(t, rt.Timestamp)

	tc := DefaultConfig(ProfileTest)
	assert.Equal(t, zerolog.DebugLevel, tc.Level)
	assert.False(t, tc.Timestamp)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogFile, "/tmp/otplat.log")

	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg)
	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/tmp/otplat.log", cfg.File)
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv(EnvLogLevel, "loud")
	t.Setenv(EnvLogNoColor, "maybe")

	cfg := DefaultConfig(ProfileTest)
	ApplyEnvOverrides(&cfg)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level)
	assert.False(t, cfg.NoColor)
}

func TestNewConsoleFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: zerolog.WarnLevel, NoColor: true}
	log, closer := New(cfg, &buf, "otnode")
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("component", "radio").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=radio")
	assert.Contains(t, out, "app=otnode")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	var console bytes.Buffer
	cfg := Config{Level: zerolog.InfoLevel, NoColor: true, File: path, MaxSizeMB: 1}
	log, closer := New(cfg, &console, "")

	log.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
	assert.Contains(t, console.String(), "to both")
}
