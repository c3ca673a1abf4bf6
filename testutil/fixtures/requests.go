// =============================================================================
// 📦 测试数据工厂 - 请求
// =============================================================================
package fixtures

import "github.com/smartyhouses/muxi-llm/llm"

// TextRequest 返回只含一条用户文本消息的请求
func TextRequest(text string) *llm.ChatRequest {
	return &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage(text)}}
}

// JSONRequest 返回要求 JSON 输出的请求，system 为空时不加系统消息
func JSONRequest(system, user string) *llm.ChatRequest {
	req := TextRequest(user)
	if system != "" {
		req.Messages = append([]llm.Message{llm.SystemMessage(system)}, req.Messages...)
	}
	req.Params.ResponseFormat = &llm.ResponseFormat{Type: llm.ResponseFormatJSON}
	return req
}

// VisionRequest 返回文本与图像混合的请求
func VisionRequest(texts ...string) *llm.ChatRequest {
	parts := make([]llm.ContentItem, 0, len(texts)+1)
	for _, t := range texts {
		parts = append(parts, llm.TextPart(t))
	}
	parts = append(parts, llm.ImagePart("https://example.com/cat.png", llm.ImageDetailAuto))
	return &llm.ChatRequest{Messages: []llm.Message{llm.UserParts(parts...)}}
}

// AudioRequest 返回文本与音频混合的请求
func AudioRequest(texts ...string) *llm.ChatRequest {
	parts := make([]llm.ContentItem, 0, len(texts)+1)
	for _, t := range texts {
		parts = append(parts, llm.TextPart(t))
	}
	parts = append(parts, llm.AudioPart("https://example.com/clip.wav", "wav"))
	return &llm.ChatRequest{Messages: []llm.Message{llm.UserParts(parts...)}}
}
