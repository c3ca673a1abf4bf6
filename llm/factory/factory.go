// Package factory builds an llm.Registry from configuration. Provider
// constructors are supplied by the caller and keyed by tag; the providers
// section of the config adds capability overrides and local rate limits.
package factory

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/smartyhouses/muxi-llm/config"
	"github.com/smartyhouses/muxi-llm/llm"
)

// RegisterOptions converts a provider config entry into registry options.
func RegisterOptions(pc config.ProviderConfig) []llm.RegisterOption {
	var opts []llm.RegisterOption
	if c := pc.Capabilities; c != nil {
		opts = append(opts, llm.WithCapabilities(llm.Capabilities{
			JSONMode:   c.JSONMode,
			Streaming:  c.Streaming,
			Vision:     c.Vision,
			AudioInput: c.AudioInput,
		}))
	}
	if pc.RateLimitRPS > 0 {
		burst := pc.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, llm.WithRateLimit(pc.RateLimitRPS, burst))
	}
	return opts
}

// NewRegistryFromConfig registers every factory under its tag, applying the
// matching entry of providers when one exists. Config entries without a
// factory are logged and skipped. Registration errors abort the build.
func NewRegistryFromConfig(providers map[string]config.ProviderConfig, factories map[string]llm.ProviderFactory, logger *zap.Logger) (*llm.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "factory"))

	reg := llm.NewRegistry(logger)

	tags := make([]string, 0, len(factories))
	for tag := range factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		pc, ok := providers[tag]
		var opts []llm.RegisterOption
		if ok {
			opts = RegisterOptions(pc)
		}
		if err := reg.Register(tag, factories[tag], opts...); err != nil {
			return nil, fmt.Errorf("register provider %q: %w", tag, err)
		}
		logger.Debug("provider registered",
			zap.String("tag", tag),
			zap.Bool("configured", ok),
		)
	}

	for tag := range providers {
		if _, ok := factories[tag]; !ok {
			logger.Warn("provider configured but no factory supplied", zap.String("tag", tag))
		}
	}

	return reg, nil
}
