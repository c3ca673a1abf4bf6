package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return c
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.requestsTotal)
	assert.NotNil(t, collector.requestDuration)
	assert.NotNil(t, collector.tokensUsed)
	assert.NotNil(t, collector.attemptsTotal)
	assert.NotNil(t, collector.fallbacksTotal)
	assert.NotNil(t, collector.warningsTotal)
}

func TestCollector_RecordRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordRequest("openai", "gpt-4", 100*time.Millisecond, nil)
	collector.RecordRequest("openai", "gpt-4", 50*time.Millisecond, types.NewRateLimitError("openai", "429"))
	collector.RecordRequest("openai", "gpt-4", 50*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("openai", "gpt-4", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("openai", "gpt-4", "RATE_LIMITED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("openai", "gpt-4", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.requestDuration))
}

func TestCollector_RecordTokens(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordTokens("anthropic", "claude", 10, 20)
	collector.RecordTokens("anthropic", "claude", 5, 5)

	assert.Equal(t, 15.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("anthropic", "claude", "prompt")))
	assert.Equal(t, 25.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("anthropic", "claude", "completion")))
}

func TestCollector_FallbackCounters(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordAttempt("a", "x", "retryable")
	collector.RecordAttempt("b", "y", "success")
	collector.RecordFallback("a/x", "RATE_LIMITED")
	collector.RecordWarning("b", "vision")
	collector.RecordWarning("b", "vision")
	collector.RecordExhausted(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.attemptsTotal.WithLabelValues("a", "x", "retryable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.attemptsTotal.WithLabelValues("b", "y", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.fallbacksTotal.WithLabelValues("a/x", "RATE_LIMITED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.warningsTotal.WithLabelValues("b", "vision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.exhaustedTotal))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// 相同 namespace 注册到不同 Registry
	_, err := NewCollector("dup", prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	_, err = NewCollector("dup", prometheus.NewRegistry(), nil)
	require.NoError(t, err)
}

func TestCollector_SameRegistryReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector("dup", reg, nil)
	require.NoError(t, err)
	second, err := NewCollector("dup", reg, nil)
	require.NoError(t, err)

	first.RecordAttempt("a", "x", "success")
	second.RecordAttempt("a", "x", "success")

	assert.Same(t, first.attemptsTotal, second.attemptsTotal)
	assert.Equal(t, 2.0, testutil.ToFloat64(second.attemptsTotal.WithLabelValues("a", "x", "success")))
}

func TestCollector_ConflictingRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	// 同名但标签不同的指标
	reg.MustRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clash",
		Name:      "llm_requests_total",
		Help:      "Total number of provider calls",
	}, []string{"other"}))

	_, err := NewCollector("clash", reg, nil)
	assert.Error(t, err)
}
