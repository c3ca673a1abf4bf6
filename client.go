package muxillm

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/config"
	"github.com/smartyhouses/muxi-llm/internal/metrics"
	"github.com/smartyhouses/muxi-llm/internal/telemetry"
	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/llm/factory"
	"github.com/smartyhouses/muxi-llm/llm/fallback"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	policy       *fallback.Policy
	orchestrator []fallback.Option
}

// WithLogger sets the logger used by the client and its orchestrator.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPolicy sets the policy used when a request carries none.
func WithPolicy(p *fallback.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithOrchestratorOptions passes options through to the orchestrator.
func WithOrchestratorOptions(opts ...fallback.Option) Option {
	return func(o *options) { o.orchestrator = append(o.orchestrator, opts...) }
}

// Client is the entry point for completions with fallback. It is safe for
// concurrent use.
type Client struct {
	registry     *llm.Registry
	orchestrator *fallback.Orchestrator
	policy       *fallback.Policy
	logger       *zap.Logger

	shutdown func(context.Context) error
}

// NewClient creates a Client over registry.
func NewClient(registry *llm.Registry, opts ...Option) (*Client, error) {
	if registry == nil {
		return nil, errors.New("muxillm: nil registry")
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.policy == nil {
		o.policy = fallback.DefaultPolicy()
	}

	orchOpts := append([]fallback.Option{fallback.WithLogger(o.logger)}, o.orchestrator...)
	return &Client{
		registry:     registry,
		orchestrator: fallback.NewOrchestrator(registry, orchOpts...),
		policy:       o.policy,
		logger:       o.logger.With(zap.String("component", "client")),
	}, nil
}

// New builds a Client from configuration: logger, registry with provider
// overrides, default policy, optional Prometheus collector (registered on
// reg, or the default registerer when reg is nil) and OpenTelemetry.
// Close releases what New started.
func New(cfg *config.Config, factories map[string]llm.ProviderFactory, reg prometheus.Registerer, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry, err := factory.NewRegistryFromConfig(cfg.Providers, factories, logger)
	if err != nil {
		return nil, err
	}

	policy, err := fallback.PolicyFromConfig(cfg.Fallback)
	if err != nil {
		return nil, err
	}

	var orchOpts []fallback.Option
	if cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
		if err != nil {
			return nil, fmt.Errorf("create prometheus collector: %w", err)
		}
		orchOpts = append(orchOpts, fallback.WithCollector(collector))
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	if providers.Enabled() {
		m, err := providers.Metrics()
		if err != nil {
			_ = providers.Shutdown(context.Background())
			return nil, fmt.Errorf("create otel instruments: %w", err)
		}
		orchOpts = append(orchOpts, fallback.WithMetrics(m))
	}

	base := []Option{WithLogger(logger), WithPolicy(policy), WithOrchestratorOptions(orchOpts...)}
	c, err := NewClient(registry, append(base, opts...)...)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, err
	}
	c.shutdown = func(ctx context.Context) error {
		err := providers.Shutdown(ctx)
		_ = logger.Sync()
		return err
	}
	return c, nil
}

// Registry returns the provider registry.
func (c *Client) Registry() *llm.Registry { return c.registry }

// Close flushes telemetry started by New. It is a no-op for clients built
// with NewClient.
func (c *Client) Close(ctx context.Context) error {
	if c.shutdown == nil {
		return nil
	}
	return c.shutdown(ctx)
}

// Create validates req and runs it through the fallback chain, blocking until
// a candidate succeeds or the chain fails. Validation failures are returned
// before any provider is called.
func (c *Client) Create(ctx context.Context, req CompletionRequest) (*fallback.Result, error) {
	if err := req.validate(c.registry); err != nil {
		c.logger.Debug("completion request rejected", zap.String("model", req.Model), zap.Error(err))
		return nil, err
	}

	policy := req.FallbackPolicy
	if policy == nil {
		policy = c.policy
	}
	return c.orchestrator.Execute(ctx, req.candidates(), req.chatRequest(), policy)
}

// CreateAsync starts Create on its own goroutine and returns immediately.
// Cancelling ctx stops the in-flight attempt and the rest of the chain.
func (c *Client) CreateAsync(ctx context.Context, req CompletionRequest) *Call {
	call := &Call{done: make(chan struct{})}
	go func() {
		defer close(call.done)
		call.res, call.err = c.Create(ctx, req)
	}()
	return call
}

// Call is a pending CreateAsync result.
type Call struct {
	done chan struct{}
	res  *fallback.Result
	err  error
}

// Done is closed when the call has finished.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call finishes or ctx is done. Giving up on ctx does
// not cancel the call; cancel the context passed to CreateAsync for that.
func (c *Call) Wait(ctx context.Context) (*fallback.Result, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the call finishes and returns its outcome.
func (c *Call) Result() (*fallback.Result, error) {
	<-c.done
	return c.res, c.err
}
