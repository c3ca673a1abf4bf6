package middleware

import (
	"context"
	"strings"

	"github.com/smartyhouses/muxi-llm/llm"
)

// JSONInstruction 是在 Provider 不支持 JSON 模式时追加到系统消息的提示。
const JSONInstruction = "Please provide your response in valid JSON format."

// WarningRecorder 收集能力降级告警
type WarningRecorder struct {
	provider string
	warnings []llm.CapabilityWarning
}

// NewWarningRecorder 为指定 Provider 创建告警收集器
func NewWarningRecorder(provider string) *WarningRecorder {
	return &WarningRecorder{provider: provider}
}

func (w *WarningRecorder) add(f llm.Feature, msg string) {
	w.warnings = append(w.warnings, llm.CapabilityWarning{Feature: f, Provider: w.provider, Message: msg})
}

// Warnings 返回按产生顺序排列的告警
func (w *WarningRecorder) Warnings() []llm.CapabilityWarning {
	return w.warnings
}

// =============================================================================
// 能力改写器
// =============================================================================

// JSONModeRewriter 在不支持 JSON 模式时移除 response_format，并通过系统消息要求 JSON 输出
type JSONModeRewriter struct {
	caps llm.Capabilities
	rec  *WarningRecorder
}

func NewJSONModeRewriter(caps llm.Capabilities, rec *WarningRecorder) *JSONModeRewriter {
	return &JSONModeRewriter{caps: caps, rec: rec}
}

func (r *JSONModeRewriter) Name() string { return "json_mode" }

func (r *JSONModeRewriter) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil || r.caps.JSONMode || !req.Params.WantsJSON() {
		return req, nil
	}

	req.Params.ResponseFormat = nil
	r.rec.add(llm.FeatureJSONMode,
		"provider does not support JSON mode; response_format was removed")

	for i := range req.Messages {
		m := &req.Messages[i]
		if m.Role != llm.RoleSystem {
			continue
		}
		if !strings.Contains(strings.ToLower(m.Text()), "json") {
			appendInstruction(m)
		}
		return req, nil
	}

	req.Messages = append([]llm.Message{llm.SystemMessage(JSONInstruction)}, req.Messages...)
	return req, nil
}

func appendInstruction(m *llm.Message) {
	if !m.HasParts() {
		m.Content += " " + JSONInstruction
		return
	}
	for i := len(m.Parts) - 1; i >= 0; i-- {
		if m.Parts[i].Type == llm.ContentText {
			m.Parts[i].Text += " " + JSONInstruction
			return
		}
	}
	m.Parts = append(m.Parts, llm.TextPart(JSONInstruction))
}

// StreamRewriter 在不支持流式输出时降级为非流式请求
type StreamRewriter struct {
	caps llm.Capabilities
	rec  *WarningRecorder
}

func NewStreamRewriter(caps llm.Capabilities, rec *WarningRecorder) *StreamRewriter {
	return &StreamRewriter{caps: caps, rec: rec}
}

func (r *StreamRewriter) Name() string { return "streaming" }

func (r *StreamRewriter) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil || r.caps.Streaming || !req.Stream {
		return req, nil
	}
	req.Stream = false
	r.rec.add(llm.FeatureStreaming,
		"provider does not support streaming; the request will be processed in non-streaming mode")
	return req, nil
}

// VisionRewriter 在不支持图像输入时把含图像的消息折叠为纯文本
type VisionRewriter struct {
	caps llm.Capabilities
	rec  *WarningRecorder
}

func NewVisionRewriter(caps llm.Capabilities, rec *WarningRecorder) *VisionRewriter {
	return &VisionRewriter{caps: caps, rec: rec}
}

func (r *VisionRewriter) Name() string { return "vision" }

func (r *VisionRewriter) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil || r.caps.Vision || !anyPart(req.Messages, llm.ContentType.IsImage) {
		return req, nil
	}

	out := req.Messages[:0]
	for _, m := range req.Messages {
		if !hasPart(m, llm.ContentType.IsImage) {
			out = append(out, m)
			continue
		}
		text := llm.JoinText(m.Parts)
		if text == "" {
			continue
		}
		m.Parts = nil
		m.Content = text
		out = append(out, m)
	}
	req.Messages = out

	r.rec.add(llm.FeatureVision,
		"provider does not support image inputs; image content was removed from the messages")
	return req, nil
}

// AudioRewriter 在不支持音频输入时移除音频片段
type AudioRewriter struct {
	caps llm.Capabilities
	rec  *WarningRecorder
}

func NewAudioRewriter(caps llm.Capabilities, rec *WarningRecorder) *AudioRewriter {
	return &AudioRewriter{caps: caps, rec: rec}
}

func (r *AudioRewriter) Name() string { return "audio_input" }

func (r *AudioRewriter) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil || r.caps.AudioInput || !anyPart(req.Messages, llm.ContentType.IsAudio) {
		return req, nil
	}

	out := req.Messages[:0]
	for _, m := range req.Messages {
		if !hasPart(m, llm.ContentType.IsAudio) {
			out = append(out, m)
			continue
		}

		kept := make([]llm.ContentItem, 0, len(m.Parts))
		onlyText := true
		for _, p := range m.Parts {
			if p.Type.IsAudio() {
				continue
			}
			if p.Type != llm.ContentText {
				onlyText = false
			}
			kept = append(kept, p)
		}

		switch {
		case len(kept) == 0:
			continue
		case onlyText:
			text := llm.JoinText(kept)
			if text == "" {
				continue
			}
			m.Parts = nil
			m.Content = text
		default:
			m.Parts = kept
		}
		out = append(out, m)
	}
	req.Messages = out

	r.rec.add(llm.FeatureAudioInput,
		"provider does not support audio inputs; audio content was removed from the messages")
	return req, nil
}

func hasPart(m llm.Message, match func(llm.ContentType) bool) bool {
	for _, p := range m.Parts {
		if match(p.Type) {
			return true
		}
	}
	return false
}

func anyPart(msgs []llm.Message, match func(llm.ContentType) bool) bool {
	for _, m := range msgs {
		if hasPart(m, match) {
			return true
		}
	}
	return false
}

// =============================================================================
// Normalize
// =============================================================================

// NewCapabilityChain 按固定顺序组装能力改写器：JSON 模式、流式、图像、音频
func NewCapabilityChain(caps llm.Capabilities, rec *WarningRecorder, extra ...RequestRewriter) *RewriterChain {
	chain := NewRewriterChain(
		NewJSONModeRewriter(caps, rec),
		NewStreamRewriter(caps, rec),
		NewVisionRewriter(caps, rec),
		NewAudioRewriter(caps, rec),
	)
	for _, r := range extra {
		chain.AddRewriter(r)
	}
	return chain
}

// Normalize 返回适配 Provider 能力的请求副本及降级告警。
// 输入请求不会被修改；已满足能力约束的请求原样返回副本且没有告警。
// 仅当 extra 中的自定义改写器失败时返回错误。
func Normalize(ctx context.Context, provider string, caps llm.Capabilities, req *llm.ChatRequest, extra ...RequestRewriter) (*llm.ChatRequest, []llm.CapabilityWarning, error) {
	rec := NewWarningRecorder(provider)
	out, err := NewCapabilityChain(caps, rec, extra...).Execute(ctx, req.Clone())
	if err != nil {
		return nil, rec.Warnings(), err
	}
	return out, rec.Warnings(), nil
}
