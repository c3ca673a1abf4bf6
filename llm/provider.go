package llm

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Role 消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function" // 旧版函数调用结果
)

// Valid 判断角色是否为已知取值。
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		return true
	}
	return false
}

type ToolCall struct {
	ID        string          `json:"id"`
	Type      string          `json:"type,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// FunctionCall 旧版 function_call 字段。
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 对话消息。
// Parts 非空时消息内容为多段结构化内容，否则使用纯文本 Content。
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	Parts        []ContentItem `json:"parts,omitempty"`
	Name         string        `json:"name,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"` // 工具返回时标识对应调用
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// HasParts 报告消息是否为结构化内容。
func (m Message) HasParts() bool {
	return m.Parts != nil
}

// Text 返回消息的文本内容；结构化内容时拼接所有 text 片段。
func (m Message) Text() string {
	if !m.HasParts() {
		return m.Content
	}
	return JoinText(m.Parts)
}

// Clone 深拷贝消息。
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentItem, len(m.Parts))
		for i, p := range m.Parts {
			out.Parts[i] = p.Clone()
		}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			out.ToolCalls[i].Arguments = slices.Clone(tc.Arguments)
		}
	}
	if m.FunctionCall != nil {
		fc := *m.FunctionCall
		out.FunctionCall = &fc
	}
	return out
}

// SystemMessage / UserMessage 为常用构造方法。
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// UserParts 构造结构化内容的用户消息。
func UserParts(parts ...ContentItem) Message {
	if parts == nil {
		parts = []ContentItem{}
	}
	return Message{Role: RoleUser, Parts: parts}
}

// ResponseFormatType 响应格式类型。
type ResponseFormatType string

const (
	ResponseFormatText ResponseFormatType = "text"
	ResponseFormatJSON ResponseFormatType = "json_object"
)

type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`
}

// Params 透传给 Provider 的采样参数。
// 未建模的参数放入 Extra，由具体 Provider 自行解释。
type Params struct {
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	N                *int               `json:"n,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string             `json:"user,omitempty"`
	Seed             *int               `json:"seed,omitempty"`
	ResponseFormat   *ResponseFormat    `json:"response_format,omitempty"`
	Extra            map[string]any     `json:"extra,omitempty"`
}

// Clone 深拷贝参数（Extra 的值为浅拷贝）。
func (p Params) Clone() Params {
	out := p
	out.Temperature = clonePtr(p.Temperature)
	out.TopP = clonePtr(p.TopP)
	out.N = clonePtr(p.N)
	out.MaxTokens = clonePtr(p.MaxTokens)
	out.PresencePenalty = clonePtr(p.PresencePenalty)
	out.FrequencyPenalty = clonePtr(p.FrequencyPenalty)
	out.Seed = clonePtr(p.Seed)
	out.ResponseFormat = clonePtr(p.ResponseFormat)
	out.Stop = slices.Clone(p.Stop)
	out.LogitBias = maps.Clone(p.LogitBias)
	out.Extra = maps.Clone(p.Extra)
	return out
}

// WantsJSON 报告是否请求了 JSON 模式。
func (p Params) WantsJSON() bool {
	return p.ResponseFormat != nil && p.ResponseFormat.Type == ResponseFormatJSON
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ChatRequest 统一的补全请求。Model 为去掉 provider 前缀后的模型名。
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	Params   Params    `json:"params"`
}

// Clone 深拷贝请求，改写器只在副本上工作。
func (r *ChatRequest) Clone() *ChatRequest {
	if r == nil {
		return nil
	}
	out := &ChatRequest{
		Model:  r.Model,
		Stream: r.Stream,
		Params: r.Params.Clone(),
	}
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		for i, m := range r.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

// ChatResponse 统一的响应信封，与实际应答的 Provider 无关。
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage"`
	CreatedAt time.Time    `json:"created_at"`
}

// FirstContent 返回第一个选项的文本，没有选项时返回空串。
func (r *ChatResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Text()
}

// StreamChunk 流式片段。Err 非空时为终止片段，之后通道关闭。
type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Index        int        `json:"index,omitempty"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          error      `json:"-"`
}

// Provider 后端模型服务的统一接口。
// HTTP 传输、鉴权与响应解析由实现方负责。
type Provider interface {
	// 同步补全
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// 流式补全，通道由实现方关闭
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	// Provider 名称
	Name() string
	// 声明的能力集合
	Capabilities() Capabilities
}

// ProviderFactory 按需构造 Provider，首次解析该 tag 时调用一次。
type ProviderFactory func(ctx context.Context) (Provider, error)
