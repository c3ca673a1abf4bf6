package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/smartyhouses/muxi-llm/types"
)

// Handle is a constructed provider together with the capability set that
// governs request normalization for it.
type Handle struct {
	Tag          string
	Provider     Provider
	Capabilities Capabilities
	limiter      *rate.Limiter
}

// Allow reports whether the local rate limit for this tag admits one more call.
// It returns a retryable RATE_LIMITED error when it does not.
func (h *Handle) Allow() error {
	if h == nil || h.limiter == nil || h.limiter.Allow() {
		return nil
	}
	return types.NewRateLimitError(h.Tag, "local rate limit exceeded").WithStage(types.StageProvider)
}

// RegisterOption customizes a registration.
type RegisterOption func(*registration)

// WithCapabilities overrides the capabilities the provider declares itself.
func WithCapabilities(caps Capabilities) RegisterOption {
	return func(r *registration) {
		r.caps = &caps
	}
}

// WithRateLimit attaches a token bucket limiter to the tag. A non-positive
// rps disables limiting.
func WithRateLimit(rps float64, burst int) RegisterOption {
	return func(r *registration) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type registration struct {
	factory ProviderFactory
	caps    *Capabilities
	limiter *rate.Limiter
	handle  *Handle
}

// Registry maps provider tags to factories and constructs each provider at
// most once, on first use. It is the only long-lived shared state of the
// library and is passed explicitly to the orchestrator and the client.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
	group   singleflight.Group
	logger  *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*registration),
		logger:  logger.With(zap.String("component", "registry")),
	}
}

// Register adds a factory under tag. Registering an existing tag replaces it
// and discards any provider already constructed for it.
func (r *Registry) Register(tag string, factory ProviderFactory, opts ...RegisterOption) error {
	if tag == "" || strings.IndexFunc(tag, unicode.IsSpace) >= 0 || strings.Contains(tag, "/") {
		return types.Errorf(types.ErrInvalidRequest, "invalid provider tag %q", tag)
	}
	if factory == nil {
		return types.Errorf(types.ErrInvalidRequest, "nil factory for provider %q", tag)
	}

	reg := &registration{factory: factory}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tag] = reg
	r.logger.Debug("provider registered", zap.String("tag", tag))
	return nil
}

// RegisterProvider registers an already constructed provider.
func (r *Registry) RegisterProvider(tag string, p Provider, opts ...RegisterOption) error {
	if p == nil {
		return types.Errorf(types.ErrInvalidRequest, "nil provider for %q", tag)
	}
	return r.Register(tag, func(context.Context) (Provider, error) { return p, nil }, opts...)
}

// Unregister removes a tag.
func (r *Registry) Unregister(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, tag)
}

// Has reports whether tag is registered. It never constructs a provider.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[tag]
	return ok
}

// Tags returns the sorted registered tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CheckModelID validates the identifier syntax and that its tag is registered,
// without constructing anything.
func (r *Registry) CheckModelID(id string) (ModelID, error) {
	mid, err := ParseModelID(id)
	if err != nil {
		return ModelID{}, err
	}
	if !r.Has(mid.Provider) {
		return ModelID{}, unknownTag(id, mid.Provider).WithStage(types.StageValidation)
	}
	return mid, nil
}

// Resolve parses id and returns the handle for its provider together with the
// bare model name. The provider is constructed on first use; concurrent first
// calls for the same tag share a single construction. Factory failures are
// returned and not cached.
func (r *Registry) Resolve(ctx context.Context, id string) (*Handle, string, error) {
	mid, err := ParseModelID(id)
	if err != nil {
		return nil, "", err
	}
	h, err := r.handle(ctx, mid.Provider, id)
	if err != nil {
		return nil, "", err
	}
	return h, mid.Model, nil
}

// handle returns the constructed handle for tag. The shared construction runs
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (r *Registry) handle(ctx context.Context, tag, id string) (*Handle, error) {
	r.mu.RLock()
	reg, ok := r.entries[tag]
	var h *Handle
	if ok {
		h = reg.handle
	}
	r.mu.RUnlock()

	if !ok {
		return nil, unknownTag(id, tag).WithStage(types.StageResolution)
	}
	if h != nil {
		return h, nil
	}

	ch := r.group.DoChan(tag, func() (any, error) {
		return r.construct(context.WithoutCancel(ctx), tag, reg)
	})
	select {
	case <-ctx.Done():
		return nil, types.NewError(types.ErrCanceled, "provider resolution canceled").
			WithCause(ctx.Err()).
			WithProvider(tag).
			WithStage(types.StageResolution)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

func (r *Registry) construct(ctx context.Context, tag string, reg *registration) (*Handle, error) {
	r.mu.RLock()
	h := reg.handle
	r.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	p, err := reg.factory(ctx)
	if err == nil && p == nil {
		err = fmt.Errorf("factory returned nil provider")
	}
	if err != nil {
		r.logger.Warn("provider construction failed", zap.String("tag", tag), zap.Error(err))
		return nil, types.Errorf(types.ErrInvalidModelID, "construct provider %q", tag).
			WithCause(err).
			WithProvider(tag).
			WithStage(types.StageResolution)
	}

	caps := p.Capabilities()
	if reg.caps != nil {
		caps = *reg.caps
	}
	h = &Handle{
		Tag:          tag,
		Provider:     p,
		Capabilities: caps,
		limiter:      reg.limiter,
	}

	r.mu.Lock()
	reg.handle = h
	r.mu.Unlock()

	r.logger.Debug("provider constructed",
		zap.String("tag", tag),
		zap.String("provider", p.Name()),
		zap.Any("capabilities", caps),
	)
	return h, nil
}

// Capabilities returns the effective capabilities of tag, constructing the
// provider if needed.
func (r *Registry) Capabilities(ctx context.Context, tag string) (Capabilities, error) {
	h, err := r.handle(ctx, tag, tag)
	if err != nil {
		return Capabilities{}, err
	}
	return h.Capabilities, nil
}

func unknownTag(id, tag string) *types.Error {
	return types.Errorf(types.ErrInvalidModelID, "provider %q is not registered (model %q)", tag, id).
		WithProvider(tag)
}
