package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEmpty(t, cfg.Fallback.RetryOn)
	assert.Empty(t, cfg.Providers)
}

// --- Individual Default*Config functions ---

func TestDefaultFallbackConfig(t *testing.T) {
	cfg := DefaultFallbackConfig()
	assert.Equal(t, 0, cfg.MaxFallbacks)
	assert.Equal(t, time.Duration(0), cfg.AttemptTimeout)
	assert.Equal(t, time.Duration(0), cfg.InitialBackoff)
	assert.InDelta(t, 2.0, cfg.Multiplier, 0.001)
	assert.True(t, cfg.Jitter)
	assert.True(t, cfg.LogFallbacks)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}

func TestDefaultConfig_ReturnsFreshInstances(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	a.Fallback.RetryOn[0] = "CHANGED"
	a.Providers["x"] = ProviderConfig{}

	assert.Equal(t, "RATE_LIMITED", b.Fallback.RetryOn[0])
	assert.Empty(t, b.Providers)
}

// --- NewLogger ---

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		cfg   LogConfig
		level zapcore.Level
	}{
		{"json debug", LogConfig{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}}, zapcore.DebugLevel},
		{"console warn", LogConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel},
		{"unknown level falls back to info", LogConfig{Level: "loud", Format: "json"}, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.level-1))
			}
		})
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "info", Format: "json", OutputPaths: []string{"/non/existent/dir/out.log"}})
	assert.Error(t, err)
}
