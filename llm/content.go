package llm

import (
	"strings"

	"github.com/smartyhouses/muxi-llm/types"
)

// ContentType 结构化内容片段类型。
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentImageURL ContentType = "image_url"
	ContentAudio    ContentType = "audio"
	ContentAudioURL ContentType = "audio_url"
)

// IsImage 报告片段是否为图像输入。
func (t ContentType) IsImage() bool { return t == ContentImage || t == ContentImageURL }

// IsAudio 报告片段是否为音频输入。
func (t ContentType) IsAudio() bool { return t == ContentAudio || t == ContentAudioURL }

// ImageDetail 图像分辨率提示。
type ImageDetail string

const (
	ImageDetailAuto ImageDetail = "auto"
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
)

type ImageURL struct {
	URL    string      `json:"url"`
	Detail ImageDetail `json:"detail,omitempty"`
}

type AudioURL struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// ContentItem 结构化内容片段（标签联合）。
// Type 决定哪个字段有效：text 使用 Text，image/image_url 使用 ImageURL，
// audio/audio_url 使用 AudioURL。
type ContentItem struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *ImageURL   `json:"image_url,omitempty"`
	AudioURL *AudioURL   `json:"audio_url,omitempty"`
}

func TextPart(text string) ContentItem {
	return ContentItem{Type: ContentText, Text: text}
}

func ImagePart(url string, detail ImageDetail) ContentItem {
	return ContentItem{Type: ContentImageURL, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

func AudioPart(url, format string) ContentItem {
	return ContentItem{Type: ContentAudioURL, AudioURL: &AudioURL{URL: url, Format: format}}
}

// Clone 深拷贝片段。
func (c ContentItem) Clone() ContentItem {
	out := c
	out.ImageURL = clonePtr(c.ImageURL)
	out.AudioURL = clonePtr(c.AudioURL)
	return out
}

// Validate 检查片段结构是否完整。
func (c ContentItem) Validate() error {
	switch {
	case c.Type == ContentText:
		return nil
	case c.Type.IsImage():
		if c.ImageURL == nil || strings.TrimSpace(c.ImageURL.URL) == "" {
			return types.NewInvalidRequestError("%s item requires image_url.url", c.Type)
		}
		switch c.ImageURL.Detail {
		case "", ImageDetailAuto, ImageDetailLow, ImageDetailHigh:
		default:
			return types.NewInvalidRequestError("invalid image detail %q", c.ImageURL.Detail)
		}
		return nil
	case c.Type.IsAudio():
		if c.AudioURL == nil || strings.TrimSpace(c.AudioURL.URL) == "" {
			return types.NewInvalidRequestError("%s item requires audio_url.url", c.Type)
		}
		return nil
	case c.Type == "":
		return types.NewInvalidRequestError("content item missing type")
	default:
		return types.NewInvalidRequestError("unknown content item type %q", c.Type)
	}
}

// Validate 检查消息角色与内容结构。
func (m Message) Validate() error {
	if m.Role == "" {
		return types.NewInvalidRequestError("message missing role")
	}
	if !m.Role.Valid() {
		return types.NewInvalidRequestError("unknown role %q", m.Role)
	}
	if m.empty() {
		return types.NewInvalidRequestError("%s message has no content", m.Role)
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			e, _ := types.AsError(err)
			return types.NewInvalidRequestError("parts[%d]: %s", i, e.Message)
		}
	}
	return nil
}

// empty 报告消息是否缺少内容。tool/function 结果允许为空，
// assistant 消息可以只携带工具调用。
func (m Message) empty() bool {
	switch m.Role {
	case RoleTool, RoleFunction:
		return false
	case RoleAssistant:
		if len(m.ToolCalls) > 0 || m.FunctionCall != nil {
			return false
		}
	}
	return m.Content == "" && len(m.Parts) == 0
}

// JoinText 拼接 text 片段，以换行分隔并去除首尾空白。
func JoinText(parts []ContentItem) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == ContentText {
			texts = append(texts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}
