package muxillm

import (
	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/llm/fallback"
	"github.com/smartyhouses/muxi-llm/types"
)

// CompletionRequest is the caller-facing request accepted by Create and
// CreateAsync.
type CompletionRequest struct {
	// Model is the primary candidate, "<provider>/<model>".
	Model    string
	Messages []llm.Message
	Stream   bool

	// FallbackModels are tried in order after the primary.
	FallbackModels []string
	// FallbackPolicy overrides the client's default policy for this call.
	FallbackPolicy *fallback.Policy
	// Retries repeats the primary this many times before FallbackModels.
	Retries int

	// Params are forwarded to whichever provider serves the request.
	Params llm.Params
}

// BuildFallbackChain returns retries copies of primary followed by fallbacks.
// The primary itself is not included.
func BuildFallbackChain(primary string, retries int, fallbacks []string) []string {
	if retries < 0 {
		retries = 0
	}
	chain := make([]string, 0, retries+len(fallbacks))
	for range retries {
		chain = append(chain, primary)
	}
	return append(chain, fallbacks...)
}

// candidates returns the full ordered chain handed to the orchestrator.
func (r *CompletionRequest) candidates() []string {
	return append([]string{r.Model}, BuildFallbackChain(r.Model, r.Retries, r.FallbackModels)...)
}

func (r *CompletionRequest) chatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:    r.Model,
		Messages: r.Messages,
		Stream:   r.Stream,
		Params:   r.Params,
	}
}

// validate checks everything that can be rejected before a provider is called.
func (r *CompletionRequest) validate(registry *llm.Registry) error {
	if _, err := registry.CheckModelID(r.Model); err != nil {
		return err
	}
	for i, id := range r.FallbackModels {
		if _, err := registry.CheckModelID(id); err != nil {
			e, _ := types.AsError(err)
			return types.Errorf(e.Code, "fallback_models[%d]: %s", i, e.Message).
				WithProvider(e.Provider).
				WithStage(types.StageValidation)
		}
	}
	if r.Retries < 0 {
		return types.NewInvalidRequestError("retries must not be negative, got %d", r.Retries)
	}
	if len(r.Messages) == 0 {
		return types.NewInvalidRequestError("messages must not be empty")
	}
	for i, m := range r.Messages {
		if err := m.Validate(); err != nil {
			e, _ := types.AsError(err)
			return types.NewInvalidRequestError("messages[%d]: %s", i, e.Message)
		}
	}
	return nil
}
