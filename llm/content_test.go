package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartyhouses/muxi-llm/types"
)

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"plain user", UserMessage("hi"), false},
		{"function role", Message{Role: RoleFunction, Name: "f", Content: "{}"}, false},
		{"missing role", Message{Content: "hi"}, true},
		{"unknown role", Message{Role: "robot", Content: "hi"}, true},
		{"image ok", UserParts(TextPart("look"), ImagePart("https://x/y.png", ImageDetailHigh)), false},
		{"image without url", UserParts(ContentItem{Type: ContentImageURL}), true},
		{"bad detail", UserParts(ImagePart("https://x/y.png", "ultra")), true},
		{"audio ok", UserParts(AudioPart("https://x/a.wav", "wav")), false},
		{"audio without url", UserParts(ContentItem{Type: ContentAudio, AudioURL: &AudioURL{}}), true},
		{"missing type", UserParts(ContentItem{Text: "x"}), true},
		{"unknown type", UserParts(ContentItem{Type: "video"}), true},
		{"empty user", UserMessage(""), true},
		{"empty system", SystemMessage(""), true},
		{"user with empty parts", Message{Role: RoleUser, Parts: []ContentItem{}}, true},
		{"empty assistant", Message{Role: RoleAssistant}, true},
		{"assistant tool call only", Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "lookup"}}}, false},
		{"assistant function call only", Message{Role: RoleAssistant, FunctionCall: &FunctionCall{Name: "f"}}, false},
		{"empty tool result", Message{Role: RoleTool, ToolCallID: "c1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestJoinText(t *testing.T) {
	parts := []ContentItem{
		TextPart("  first"),
		ImagePart("https://x/y.png", ""),
		TextPart("second  "),
	}
	assert.Equal(t, "first\nsecond", JoinText(parts))
	assert.Equal(t, "", JoinText([]ContentItem{ImagePart("https://x", "")}))
}

func TestChatRequest_CloneIsDeep(t *testing.T) {
	temp := 0.2
	orig := &ChatRequest{
		Model: "m",
		Messages: []Message{
			SystemMessage("sys"),
			UserParts(TextPart("a"), ImagePart("https://x/y.png", ImageDetailLow)),
		},
		Params: Params{
			Temperature:    &temp,
			Stop:           []string{"END"},
			ResponseFormat: &ResponseFormat{Type: ResponseFormatJSON},
			Extra:          map[string]any{"k": 1},
		},
	}

	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp.Messages[0].Content = "changed"
	cp.Messages[1].Parts[1].ImageURL.URL = "changed"
	*cp.Params.Temperature = 1
	cp.Params.Stop[0] = "changed"
	cp.Params.ResponseFormat = nil
	cp.Params.Extra["k"] = 2

	assert.Equal(t, "sys", orig.Messages[0].Content)
	assert.Equal(t, "https://x/y.png", orig.Messages[1].Parts[1].ImageURL.URL)
	assert.Equal(t, 0.2, *orig.Params.Temperature)
	assert.Equal(t, "END", orig.Params.Stop[0])
	assert.True(t, orig.Params.WantsJSON())
	assert.Equal(t, 1, orig.Params.Extra["k"])
}

func TestCapabilities_Supports(t *testing.T) {
	caps := Capabilities{JSONMode: true, Vision: true}
	assert.True(t, caps.Supports(FeatureJSONMode))
	assert.False(t, caps.Supports(FeatureStreaming))
	assert.True(t, caps.Supports(FeatureVision))
	assert.False(t, caps.Supports(FeatureAudioInput))
	assert.False(t, caps.Supports("unknown"))
	assert.Equal(t, Capabilities{true, true, true, true}, FullCapabilities())
}
