// =============================================================================
// 📦 测试数据工厂 - 响应与流式块
// =============================================================================
package fixtures

import (
	"time"

	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID: "resp-001",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
			},
		},
		Usage:     CustomUsage(10, 20),
		CreatedAt: time.Now(),
	}
}

// ResponseWithUsage 返回带自定义 Token 使用量的响应
func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	resp := SimpleResponse(content)
	resp.Usage = CustomUsage(promptTokens, completionTokens)
	return resp
}

// CustomUsage 返回自定义 Token 使用量
func CustomUsage(prompt, completion int) llm.ChatUsage {
	return llm.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// =============================================================================
// 🌊 StreamChunk 工厂
// =============================================================================

// TextChunk 创建文本流式块
func TextChunk(content string, finishReason string) llm.StreamChunk {
	return llm.StreamChunk{
		ID:           "chunk-001",
		Delta:        llm.Message{Role: llm.RoleAssistant, Content: content},
		FinishReason: finishReason,
	}
}

// ErrorChunk 创建错误流式块
func ErrorChunk(err *types.Error) llm.StreamChunk {
	return llm.StreamChunk{
		ID:           "chunk-error-001",
		FinishReason: "error",
		Err:          err,
	}
}

// WordByWordChunks 返回逐词的流式块序列
func WordByWordChunks(words ...string) []llm.StreamChunk {
	chunks := make([]llm.StreamChunk, len(words))
	for i, word := range words {
		content := word
		finishReason := ""
		if i < len(words)-1 {
			content += " "
		} else {
			finishReason = "stop"
		}
		chunks[i] = TextChunk(content, finishReason)
		chunks[i].Index = i
	}
	return chunks
}
