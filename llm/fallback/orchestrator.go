package fallback

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/internal/ctxkeys"
	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/llm/middleware"
	"github.com/smartyhouses/muxi-llm/llm/observability"
	"github.com/smartyhouses/muxi-llm/llm/retry"
	"github.com/smartyhouses/muxi-llm/types"
)

// Outcome is the classification of a single candidate attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Result is the outcome of a successful orchestration.
// Exactly one of Response and Stream is set.
type Result struct {
	Response *llm.ChatResponse
	Stream   <-chan llm.StreamChunk

	RequestID string
	Candidate string // candidate that served the request
	Provider  string // provider tag of Candidate
	Model     string // bare model name of Candidate
	Attempts  int    // number of candidates tried, including the successful one

	// Failures holds the errors of candidates tried before the successful one.
	Failures []types.AttemptError
	// Warnings holds capability adaptations of every attempt, in attempt order.
	Warnings []llm.CapabilityWarning
}

// Collector receives per-attempt counters. internal/metrics.Collector
// implements it on top of Prometheus.
type Collector interface {
	middleware.MetricsCollector
	RecordAttempt(provider, model, outcome string)
	RecordFallback(from, errorCode string)
	RecordWarning(provider, feature string)
	RecordExhausted(candidates int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry spans and instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCollector enables Prometheus counters.
func WithCollector(c Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// WithRewriters appends request rewriters that run after capability normalization.
func WithRewriters(rewriters ...middleware.RequestRewriter) Option {
	return func(o *Orchestrator) { o.rewriters = append(o.rewriters, rewriters...) }
}

// WithMiddleware wraps every non-streaming provider call.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(o *Orchestrator) { o.middlewares = append(o.middlewares, mw...) }
}

// Orchestrator drives an ordered chain of candidates until one succeeds.
// Attempts are strictly sequential. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	registry    *llm.Registry
	logger      *zap.Logger
	metrics     *observability.Metrics
	collector   Collector
	rewriters   []middleware.RequestRewriter
	middlewares []middleware.Middleware
}

// NewOrchestrator creates an Orchestrator over registry.
func NewOrchestrator(registry *llm.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "fallback"))
	return o
}

// errAttemptTimeout is the cancel cause set when an attempt exceeds
// Policy.AttemptTimeout.
var errAttemptTimeout = errors.New("attempt timeout")

// attemptResult is the explicit result of trying one candidate.
type attemptResult struct {
	outcome  Outcome
	provider string
	model    string
	resp     *llm.ChatResponse
	stream   <-chan llm.StreamChunk
	warnings []llm.CapabilityWarning
	err      error
}

// Execute tries candidates in order and returns the first success.
//
// The original request is never modified; it is normalized afresh for each
// candidate's capabilities. A retryable failure (per policy) advances to the
// next candidate; any other failure, a resolution failure, or cancellation of
// ctx is returned immediately. When every candidate fails with a retryable
// error the returned error is a *types.FallbackError listing each failure in
// attempt order. A nil policy means DefaultPolicy.
func (o *Orchestrator) Execute(ctx context.Context, candidates []string, req *llm.ChatRequest, policy *Policy) (*Result, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoCandidates, "fallback chain is empty").
			WithStage(types.StageValidation)
	}
	if req == nil {
		return nil, types.NewInvalidRequestError("nil request")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	candidates = policy.limit(candidates)

	requestID, ok := ctxkeys.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = ctxkeys.WithRequestID(ctx, requestID)
	}
	logger := o.logger.With(zap.String("request_id", requestID))

	var span trace.Span
	if o.metrics != nil {
		ctx, span = o.metrics.StartOrchestration(ctx, requestID, candidates)
	}

	res, err := o.run(ctx, logger, requestID, candidates, req, policy)

	if o.metrics != nil {
		servedBy, attempts := "", len(candidates)
		if res != nil {
			servedBy, attempts = res.Candidate, res.Attempts
		}
		o.metrics.EndOrchestration(ctx, span, servedBy, attempts, err)
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, requestID string, candidates []string, req *llm.ChatRequest, policy *Policy) (*Result, error) {
	backoff := retry.NewBackoff(policy.Backoff)

	var (
		failures []types.AttemptError
		warnings []llm.CapabilityWarning
	)

	for i, candidate := range candidates {
		if i > 0 {
			if err := backoff.Wait(ctx, i); err != nil {
				return nil, canceled(ctx)
			}
		}
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}

		logger.Debug("attempting candidate",
			zap.Int("index", i),
			zap.String("candidate", candidate),
			zap.Int("chain_length", len(candidates)),
		)

		att := o.attempt(ctx, logger, i, candidate, req, policy)
		warnings = append(warnings, att.warnings...)

		switch att.outcome {
		case OutcomeSuccess:
			if i > 0 {
				logger.Info("fallback candidate succeeded",
					zap.String("candidate", candidate),
					zap.Int("attempts", i+1),
				)
			}
			return &Result{
				Response:  att.resp,
				Stream:    att.stream,
				RequestID: requestID,
				Candidate: candidate,
				Provider:  att.provider,
				Model:     att.model,
				Attempts:  i + 1,
				Failures:  failures,
				Warnings:  warnings,
			}, nil

		case OutcomeFatal:
			logger.Debug("candidate failed with non-retryable error",
				zap.String("candidate", candidate),
				zap.Error(att.err),
			)
			return nil, att.err
		}

		failures = append(failures, types.AttemptError{
			Index:     i,
			Candidate: candidate,
			Provider:  att.provider,
			Model:     att.model,
			Err:       att.err,
		})
		code := string(types.GetErrorCode(att.err))

		if i == len(candidates)-1 {
			break
		}

		next := candidates[i+1]
		if policy.LogFallbacks {
			logger.Warn("candidate failed, falling back",
				zap.String("from", candidate),
				zap.String("to", next),
				zap.String("error_code", code),
				zap.Error(att.err),
			)
		}
		if o.metrics != nil {
			o.metrics.RecordFallback(ctx, candidate, i+1, code)
		}
		if o.collector != nil {
			o.collector.RecordFallback(candidate, code)
		}
		if policy.OnFallback != nil {
			policy.OnFallback(Event{Index: i, From: candidate, To: next, Err: att.err})
		}
	}

	err := &types.FallbackError{Attempts: failures}
	logger.Error("all fallback candidates failed",
		zap.Int("attempts", len(failures)),
		zap.Error(err),
	)
	if o.collector != nil {
		o.collector.RecordExhausted(len(failures))
	}
	return nil, err
}

// attempt resolves, normalizes and calls a single candidate.
func (o *Orchestrator) attempt(ctx context.Context, logger *zap.Logger, index int, candidate string, req *llm.ChatRequest, policy *Policy) attemptResult {
	h, model, err := o.registry.Resolve(ctx, candidate)
	if err != nil {
		return attemptResult{outcome: OutcomeFatal, err: err}
	}

	nreq, warnings, err := middleware.Normalize(ctx, h.Tag, h.Capabilities, req, o.rewriters...)
	if err != nil {
		return attemptResult{outcome: OutcomeFatal, provider: h.Tag, model: model, warnings: warnings,
			err: types.NewInvalidRequestError("normalize request for %s", candidate).WithCause(err).WithProvider(h.Tag)}
	}
	nreq.Model = model

	for _, w := range warnings {
		logger.Warn("capability downgrade",
			zap.String("candidate", candidate),
			zap.String("feature", string(w.Feature)),
			zap.String("message", w.Message),
		)
		if o.metrics != nil {
			o.metrics.RecordWarning(ctx, w.Provider, string(w.Feature))
		}
		if o.collector != nil {
			o.collector.RecordWarning(w.Provider, string(w.Feature))
		}
	}

	ctx = ctxkeys.WithCandidate(ctx, candidate)
	ctx = ctxkeys.WithAttempt(ctx, index)

	attrs := observability.AttemptAttrs{Index: index, Candidate: candidate, Provider: h.Tag, Model: model, Stream: nreq.Stream}
	var span trace.Span
	if o.metrics != nil {
		ctx, span = o.metrics.StartAttempt(ctx, attrs)
	}
	start := time.Now()

	var att attemptResult
	if err := h.Allow(); err != nil {
		att = o.classify(ctx, nil, err, policy)
	} else if nreq.Stream {
		att = o.stream(ctx, h, nreq, policy)
	} else {
		att = o.complete(ctx, h, nreq, policy)
	}
	att.provider, att.model, att.warnings = h.Tag, model, warnings

	if o.collector != nil {
		o.collector.RecordAttempt(h.Tag, model, att.outcome.String())
	}
	if o.metrics != nil {
		res := observability.AttemptResult{
			Outcome:   att.outcome.String(),
			ErrorCode: string(types.GetErrorCode(att.err)),
			Err:       att.err,
			Duration:  time.Since(start),
		}
		if att.resp != nil {
			res.TokensPrompt = att.resp.Usage.PromptTokens
			res.TokensCompletion = att.resp.Usage.CompletionTokens
		}
		o.metrics.EndAttempt(ctx, span, attrs, res)
	}
	return att
}

// complete performs a non-streaming call through the middleware chain.
func (o *Orchestrator) complete(ctx context.Context, h *llm.Handle, req *llm.ChatRequest, policy *Policy) attemptResult {
	actx, cancel := attemptContext(ctx, policy.AttemptTimeout)
	defer cancel()

	chain := middleware.NewChain(
		middleware.RecoveryMiddleware(func(v any) {
			o.logger.Error("provider panicked", zap.String("provider", h.Tag), zap.Any("panic", v))
		}),
		middleware.LoggingMiddleware(o.logger.With(zap.String("provider", h.Tag))),
	)
	if o.collector != nil {
		chain.Use(middleware.MetricsMiddleware(o.collector, h.Tag))
	}
	for _, mw := range o.middlewares {
		chain.Use(mw)
	}

	handler := chain.Then(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return h.Provider.Completion(ctx, req)
	})

	resp, err := handler(actx, req)
	if err == nil && resp == nil {
		err = types.NewServerError(h.Tag, "provider returned an empty response")
	}
	if err != nil {
		return o.classify(ctx, actx, err, policy)
	}

	if resp.Provider == "" {
		resp.Provider = h.Tag
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return attemptResult{outcome: OutcomeSuccess, resp: resp}
}

// classify maps an attempt error to an outcome. Cancellation of the parent
// context is always fatal; an attempt that ran out its own timeout becomes a
// retryable UPSTREAM_TIMEOUT; context and network timeout errors raised inside
// the provider are typed first; typed errors follow the policy; anything else
// is fatal and returned untouched.
func (o *Orchestrator) classify(ctx, actx context.Context, err error, policy *Policy) attemptResult {
	if ctx.Err() != nil {
		return attemptResult{outcome: OutcomeFatal, err: canceled(ctx)}
	}
	if actx != nil && errors.Is(context.Cause(actx), errAttemptTimeout) {
		err = types.Errorf(types.ErrUpstreamTimeout, "attempt exceeded %s", policy.AttemptTimeout).
			WithCause(err).
			WithRetryable(true).
			WithStage(types.StageProvider)
	}
	if _, typed := types.AsError(err); !typed {
		err = fromTransport(err)
	}
	if policy.Retries(types.GetErrorCode(err)) {
		return attemptResult{outcome: OutcomeRetryable, err: err}
	}
	return attemptResult{outcome: OutcomeFatal, err: err}
}

// fromTransport types context errors and network timeouts that a provider
// returned without wrapping. Other errors are returned as is.
func fromTransport(err error) error {
	if e := types.FromContext(err); e != nil {
		return e.WithStage(types.StageProvider)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return types.NewError(types.ErrUpstreamTimeout, "network timeout").
			WithCause(err).
			WithRetryable(true).
			WithStage(types.StageProvider)
	}
	return err
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, errAttemptTimeout)
}

func canceled(ctx context.Context) error {
	return types.NewError(types.ErrCanceled, "orchestration canceled").WithCause(ctx.Err())
}
