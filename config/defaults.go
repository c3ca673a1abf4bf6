// =============================================================================
// 📦 muxi-llm 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Fallback:  DefaultFallbackConfig(),
		Metrics:   DefaultMetricsConfig(),
		Providers: map[string]ProviderConfig{},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "muxi-llm",
		SampleRate:   0.1,
	}
}

// DefaultFallbackConfig 返回默认降级配置
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		RetryOn:        []string{"RATE_LIMITED", "UPSTREAM_TIMEOUT", "UPSTREAM_ERROR"},
		MaxFallbacks:   0,
		AttemptTimeout: 0,
		InitialBackoff: 0,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		Jitter:         true,
		LogFallbacks:   true,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "muxillm",
	}
}
