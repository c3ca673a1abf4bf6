package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smartyhouses/muxi-llm/llm"

// Metrics 降级编排的 OTel 追踪与指标
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter
	// 柜台
	orchestrationTotal metric.Int64Counter
	attemptTotal       metric.Int64Counter
	fallbackTotal      metric.Int64Counter
	warningTotal       metric.Int64Counter
	tokenTotal         metric.Int64Counter
	// 直方图
	attemptDuration metric.Float64Histogram
	chainLength     metric.Int64Histogram
	// 高地语
	activeOrchestrations metric.Int64UpDownCounter
}

// NewMetrics 使用全局 TracerProvider / MeterProvider 创建指标收集器
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewMetricsWithProviders 使用指定的 Provider 创建指标收集器
func NewMetricsWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Metrics, error) {
	tracer := tp.Tracer(instrumentationName)
	meter := mp.Meter(instrumentationName)

	m := &Metrics{
		tracer: tracer,
		meter:  meter,
	}

	var err error

	// 编排计数
	m.orchestrationTotal, err = meter.Int64Counter("llm.orchestration.total",
		metric.WithDescription("Total number of fallback orchestrations"),
		metric.WithUnit("{orchestration}"))
	if err != nil {
		return nil, err
	}

	// 单候选尝试计数
	m.attemptTotal, err = meter.Int64Counter("llm.attempt.total",
		metric.WithDescription("Total number of candidate attempts"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}

	// 降级计数
	m.fallbackTotal, err = meter.Int64Counter("llm.fallback.total",
		metric.WithDescription("Total number of fallbacks triggered"),
		metric.WithUnit("{fallback}"))
	if err != nil {
		return nil, err
	}

	// 能力降级告警
	m.warningTotal, err = meter.Int64Counter("llm.capability.warning.total",
		metric.WithDescription("Total number of capability downgrades"),
		metric.WithUnit("{warning}"))
	if err != nil {
		return nil, err
	}

	// Token 计数
	m.tokenTotal, err = meter.Int64Counter("llm.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	// 尝试延迟
	m.attemptDuration, err = meter.Float64Histogram("llm.attempt.duration",
		metric.WithDescription("Attempt duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}

	// 降级链长度
	m.chainLength, err = meter.Int64Histogram("llm.chain.length",
		metric.WithDescription("Number of candidates per orchestration"),
		metric.WithUnit("{candidate}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 6, 8))
	if err != nil {
		return nil, err
	}

	// 进行中的编排数
	m.activeOrchestrations, err = meter.Int64UpDownCounter("llm.orchestration.active",
		metric.WithDescription("Number of in-flight orchestrations"),
		metric.WithUnit("{orchestration}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AttemptAttrs 单次尝试属性
type AttemptAttrs struct {
	Index     int
	Candidate string
	Provider  string
	Model     string
	Stream    bool
}

// AttemptResult 单次尝试结果
type AttemptResult struct {
	Outcome          string
	ErrorCode        string
	Err              error
	Duration         time.Duration
	TokensPrompt     int
	TokensCompletion int
}

// StartOrchestration 开始一次编排追踪
func (m *Metrics) StartOrchestration(ctx context.Context, requestID string, candidates []string) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "llm.orchestration",
		trace.WithAttributes(
			attribute.String("llm.request_id", requestID),
			attribute.StringSlice("llm.candidates", candidates),
		))

	m.activeOrchestrations.Add(ctx, 1)
	m.chainLength.Record(ctx, int64(len(candidates)))
	return ctx, span
}

// EndOrchestration 结束编排追踪
func (m *Metrics) EndOrchestration(ctx context.Context, span trace.Span, servedBy string, attempts int, err error) {
	defer span.End()

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	m.activeOrchestrations.Add(ctx, -1)
	m.orchestrationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	span.SetAttributes(
		attribute.String("llm.served_by", servedBy),
		attribute.Int("llm.attempts", attempts),
		attribute.String("llm.status", status))
}

// StartAttempt 开始单个候选的尝试追踪
func (m *Metrics) StartAttempt(ctx context.Context, attrs AttemptAttrs) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "llm.attempt",
		trace.WithAttributes(
			attribute.Int("llm.attempt.index", attrs.Index),
			attribute.String("llm.candidate", attrs.Candidate),
			attribute.String("llm.provider", attrs.Provider),
			attribute.String("llm.model", attrs.Model),
			attribute.Bool("llm.stream", attrs.Stream),
		))
}

// EndAttempt 结束单个候选的尝试追踪
func (m *Metrics) EndAttempt(ctx context.Context, span trace.Span, attrs AttemptAttrs, res AttemptResult) {
	defer span.End()

	commonAttrs := []attribute.KeyValue{
		attribute.String("provider", attrs.Provider),
		attribute.String("model", attrs.Model),
		attribute.String("outcome", res.Outcome),
	}

	m.attemptTotal.Add(ctx, 1, metric.WithAttributes(commonAttrs...))
	m.attemptDuration.Record(ctx, res.Duration.Seconds(), metric.WithAttributes(commonAttrs...))

	if total := int64(res.TokensPrompt + res.TokensCompletion); total > 0 {
		m.tokenTotal.Add(ctx, int64(res.TokensPrompt), metric.WithAttributes(
			attribute.String("provider", attrs.Provider),
			attribute.String("model", attrs.Model),
			attribute.String("type", "prompt")))
		m.tokenTotal.Add(ctx, int64(res.TokensCompletion), metric.WithAttributes(
			attribute.String("provider", attrs.Provider),
			attribute.String("model", attrs.Model),
			attribute.String("type", "completion")))
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if res.ErrorCode != "" {
		span.SetAttributes(attribute.String("error.code", res.ErrorCode))
	}

	span.SetAttributes(
		attribute.String("llm.outcome", res.Outcome),
		attribute.Float64("llm.duration_ms", float64(res.Duration.Milliseconds())))
}

// RecordFallback 记录从 from 降级到下一候选
func (m *Metrics) RecordFallback(ctx context.Context, from string, level int, errorCode string) {
	m.fallbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.Int("level", level),
		attribute.String("error_code", errorCode)))

	trace.SpanFromContext(ctx).AddEvent("llm.fallback", trace.WithAttributes(
		attribute.String("from", from),
		attribute.Int("level", level),
		attribute.String("error_code", errorCode)))
}

// RecordWarning 记录能力降级告警
func (m *Metrics) RecordWarning(ctx context.Context, provider, feature string) {
	m.warningTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("feature", feature)))

	trace.SpanFromContext(ctx).AddEvent("llm.capability_warning", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("feature", feature)))
}

// Tracer 获取 Tracer
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}
