// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// Provider 调用指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec

	// 降级编排指标
	attemptsTotal    *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	warningsTotal    *prometheus.CounterVec
	exhaustedTotal   prometheus.Counter
	exhaustedAttempt prometheus.Histogram

	logger *zap.Logger
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registerer。
// 同名指标已注册时复用已有指标，因此同一进程内可多次创建。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) (*Collector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}
	var err error

	// Provider 调用指标
	if c.requestsTotal, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of provider calls",
		},
		[]string{"provider", "model", "status"},
	)); err != nil {
		return nil, err
	}

	if c.requestDuration, err = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)); err != nil {
		return nil, err
	}

	if c.tokensUsed, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"},
	)); err != nil {
		return nil, err
	}

	// 降级编排指标
	if c.attemptsTotal, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_attempts_total",
			Help:      "Total number of candidate attempts by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)); err != nil {
		return nil, err
	}

	if c.fallbacksTotal, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_advances_total",
			Help:      "Total number of advances to the next candidate",
		},
		[]string{"from", "error_code"},
	)); err != nil {
		return nil, err
	}

	if c.warningsTotal, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_warnings_total",
			Help:      "Total number of capability downgrades applied to requests",
		},
		[]string{"provider", "feature"},
	)); err != nil {
		return nil, err
	}

	if c.exhaustedTotal, err = register(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_exhausted_total",
			Help:      "Total number of orchestrations where every candidate failed",
		},
	)); err != nil {
		return nil, err
	}

	if c.exhaustedAttempt, err = register(reg, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fallback_exhausted_chain_length",
			Help:      "Chain length of exhausted orchestrations",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		},
	)); err != nil {
		return nil, err
	}

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c, nil
}

// register 注册指标；已存在同名同类型指标时返回已有实例
func register[T prometheus.Collector](reg prometheus.Registerer, m T) (T, error) {
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return m, nil
}

// =============================================================================
// 🤖 Provider 调用记录
// =============================================================================

// RecordRequest 记录一次 Provider 调用
func (c *Collector) RecordRequest(provider, model string, duration time.Duration, err error) {
	c.requestsTotal.WithLabelValues(provider, model, status(err)).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens 记录 Token 用量
func (c *Collector) RecordTokens(provider, model string, prompt, completion int) {
	c.tokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	c.tokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

// =============================================================================
// 🔀 降级编排记录
// =============================================================================

// RecordAttempt 记录一次候选尝试
func (c *Collector) RecordAttempt(provider, model, outcome string) {
	c.attemptsTotal.WithLabelValues(provider, model, outcome).Inc()
}

// RecordFallback 记录一次降级
func (c *Collector) RecordFallback(from, errorCode string) {
	c.fallbacksTotal.WithLabelValues(from, errorCode).Inc()
}

// RecordWarning 记录一次能力降级告警
func (c *Collector) RecordWarning(provider, feature string) {
	c.warningsTotal.WithLabelValues(provider, feature).Inc()
}

// RecordExhausted 记录降级链耗尽
func (c *Collector) RecordExhausted(candidates int) {
	c.exhaustedTotal.Inc()
	c.exhaustedAttempt.Observe(float64(candidates))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// status 将错误转换为 label 值
func status(err error) string {
	if err == nil {
		return "success"
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "error"
}
