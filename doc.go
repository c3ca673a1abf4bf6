// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

// Package muxillm provides chat completions across many LLM providers with
// capability negotiation and ordered fallback.
//
// Usage:
//
//	reg := llm.NewRegistry(logger)
//	_ = reg.Register("openai", newOpenAI)
//	_ = reg.Register("anthropic", newAnthropic)
//
//	client, _ := muxillm.NewClient(reg, muxillm.WithLogger(logger))
//	res, err := client.Create(ctx, muxillm.CompletionRequest{
//	    Model:          "openai/gpt-4o",
//	    Messages:       []llm.Message{llm.UserMessage("hello")},
//	    FallbackModels: []string{"anthropic/claude-3-5-sonnet"},
//	    Retries:        1,
//	})
//
// Each candidate receives a request adapted to its declared capabilities;
// the adaptations made are reported in Result.Warnings. Retryable failures
// advance the chain; anything else is returned at once.
package muxillm
