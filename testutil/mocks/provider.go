// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按调用序号注入错误、流式输出与中途失败场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/smartyhouses/muxi-llm/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name string
	caps llm.Capabilities

	// 响应配置
	response     string
	streamChunks []string
	err          error
	errSeq       []error // 第 i 次调用返回 errSeq[i]（nil 表示成功）
	streamErrAt  int     // 发送 streamErrAt 个块后以 streamErr 终止
	streamErr    error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	delay     time.Duration
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Stream   bool
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider，默认声明全部能力
func NewMockProvider(name string) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{
		name:             name,
		caps:             llm.FullCapabilities(),
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithCapabilities 设置声明的能力
func (m *MockProvider) WithCapabilities(caps llm.Capabilities) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = caps
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置每次调用都返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithErrorSequence 按调用序号返回错误，超出序列后按 WithError 的配置处理
func (m *MockProvider) WithErrorSequence(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errSeq = errs
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithStreamErrorAfter 在发送 n 个块后以 err 作为终止块
func (m *MockProvider) WithStreamErrorAfter(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamErrAt = n
	m.streamErr = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 context 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithStreamFunc 设置自定义 Stream 函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- 调用记录 ---

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastRequest 返回最后一次收到的请求
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return m.name
}

// Capabilities 返回声明的能力
func (m *MockProvider) Capabilities() llm.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// begin 记录一次调用并返回本次应注入的错误
func (m *MockProvider) begin() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.callCount
	m.callCount++
	if idx < len(m.errSeq) {
		return m.delay, m.errSeq[idx]
	}
	return m.delay, m.err
}

func (m *MockProvider) record(call MockProviderCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	delay, err := m.begin()

	if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
		m.record(MockProviderCall{Request: req, Error: sleepErr})
		return nil, sleepErr
	}

	if err != nil {
		m.record(MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	m.mu.Lock()
	fn := m.completionFunc
	content := m.response
	prompt, completion := m.promptTokens, m.completionTokens
	m.mu.Unlock()

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: m.name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		CreatedAt: time.Now(),
	}
	m.record(MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	delay, err := m.begin()

	if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
		m.record(MockProviderCall{Stream: true, Request: req, Error: sleepErr})
		return nil, sleepErr
	}
	if err != nil {
		m.record(MockProviderCall{Stream: true, Request: req, Error: err})
		return nil, err
	}

	m.mu.Lock()
	fn := m.streamFunc
	chunks := append([]string(nil), m.streamChunks...)
	if len(chunks) == 0 {
		chunks = []string{m.response}
	}
	errAt, streamErr := m.streamErrAt, m.streamErr
	m.mu.Unlock()

	m.record(MockProviderCall{Stream: true, Request: req})
	if fn != nil {
		return fn(ctx, req)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for i, text := range chunks {
			if streamErr != nil && i == errAt {
				break
			}
			chunk := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: m.name,
				Model:    req.Model,
				Index:    i,
				Delta:    llm.Message{Role: llm.RoleAssistant, Content: text},
			}
			if streamErr == nil && i == len(chunks)-1 {
				chunk.FinishReason = "stop"
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
		if streamErr != nil {
			select {
			case <-ctx.Done():
			case ch <- llm.StreamChunk{Provider: m.name, Model: req.Model, Err: streamErr}:
			}
		}
	}()
	return ch, nil
}
