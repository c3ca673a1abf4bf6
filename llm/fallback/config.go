package fallback

import (
	"fmt"
	"strings"

	"github.com/smartyhouses/muxi-llm/config"
	"github.com/smartyhouses/muxi-llm/llm/retry"
	"github.com/smartyhouses/muxi-llm/types"
)

var knownCodes = map[types.ErrorCode]struct{}{
	types.ErrInvalidRequest:       {},
	types.ErrInvalidModelID:       {},
	types.ErrNoCandidates:         {},
	types.ErrUnsupportedOperation: {},
	types.ErrRateLimited:          {},
	types.ErrUpstreamTimeout:      {},
	types.ErrUpstreamError:        {},
	types.ErrUnauthorized:         {},
	types.ErrFallbackExhausted:    {},
	types.ErrCanceled:             {},
}

// PolicyFromConfig converts the fallback section of the configuration into a
// Policy. Error codes are matched case-insensitively; unknown codes are an
// error. A zero InitialBackoff disables backoff.
func PolicyFromConfig(cfg config.FallbackConfig) (*Policy, error) {
	p := &Policy{
		MaxFallbacks:   cfg.MaxFallbacks,
		AttemptTimeout: cfg.AttemptTimeout,
		LogFallbacks:   cfg.LogFallbacks,
	}

	for _, s := range cfg.RetryOn {
		code := types.ErrorCode(strings.ToUpper(strings.TrimSpace(s)))
		if code == "" {
			continue
		}
		if _, ok := knownCodes[code]; !ok {
			return nil, fmt.Errorf("fallback retry_on: unknown error code %q", s)
		}
		p.RetryOn = append(p.RetryOn, code)
	}

	if cfg.InitialBackoff > 0 {
		p.Backoff = &retry.BackoffPolicy{
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   cfg.Multiplier,
			Jitter:       cfg.Jitter,
		}
	}
	return p, nil
}
