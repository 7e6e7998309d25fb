package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.NotEmpty(t, cfg.TimeFormat)

	prod := ProductionConfig()
	assert.Equal(t, "json", prod.Format)
	assert.Equal(t, cfg.Output, prod.Output)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "production config", cfg: ProductionConfig()},
		{name: "stdout debug", cfg: &Config{Level: "debug", Format: "console", Output: "stdout"}},
		{name: "unknown level", cfg: &Config{Level: "verbose", Format: "json"}, wantErr: true},
		{name: "unwritable file", cfg: &Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "missing", "billing.log")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewForEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production", "staging"} {
		t.Run(env, func(t *testing.T) {
			logger, err := NewForEnvironment(env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
		ok       bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"DEBUG", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"", zapcore.InfoLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{" error ", zapcore.ErrorLevel, true},
		{"fatal", zapcore.FatalLevel, true},
		{"verbose", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, ok := ParseLevel(tt.level)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNew_FileOutputWithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.log")
	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: path,
		Fields: map[string]string{"app": "garage-billing"},
	})
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("Payment recorded")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Payment recorded", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "garage-billing", entry["app"])
	assert.NotEmpty(t, entry["time"])
}
