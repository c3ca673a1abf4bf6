package fallback

import (
	"slices"
	"time"

	"github.com/smartyhouses/muxi-llm/llm/retry"
	"github.com/smartyhouses/muxi-llm/types"
)

// Event describes one advance from a failed candidate to the next.
type Event struct {
	Index int    // index of the failed candidate
	From  string // failed candidate
	To    string // next candidate
	Err   error  // classified error of the failed attempt
}

// Policy controls which errors advance the chain and how attempts are paced.
type Policy struct {
	// RetryOn lists the error codes that advance to the next candidate.
	// Any other error is returned to the caller immediately.
	RetryOn []types.ErrorCode

	// MaxFallbacks bounds how many times the chain may advance. Zero means
	// every candidate may be tried.
	MaxFallbacks int

	// Backoff is the wait applied before each fallback attempt. Nil means none.
	Backoff *retry.BackoffPolicy

	// AttemptTimeout bounds a single attempt. For streams it bounds the wait
	// for the first chunk. Zero disables it.
	AttemptTimeout time.Duration

	// LogFallbacks logs every advance at warn level.
	LogFallbacks bool

	// OnFallback is called synchronously on every advance.
	OnFallback func(Event)
}

// DefaultRetryOn is the default set of codes that advance the chain.
var DefaultRetryOn = []types.ErrorCode{
	types.ErrRateLimited,
	types.ErrUpstreamTimeout,
	types.ErrUpstreamError,
}

// DefaultPolicy retries on rate limits, timeouts and server errors.
func DefaultPolicy() *Policy {
	return &Policy{
		RetryOn:      slices.Clone(DefaultRetryOn),
		LogFallbacks: true,
	}
}

// Retries reports whether code advances the chain.
func (p *Policy) Retries(code types.ErrorCode) bool {
	return code != "" && slices.Contains(p.RetryOn, code)
}

// limit truncates candidates to what MaxFallbacks allows.
func (p *Policy) limit(candidates []string) []string {
	if p.MaxFallbacks <= 0 || len(candidates) <= p.MaxFallbacks+1 {
		return candidates
	}
	return candidates[:p.MaxFallbacks+1]
}
