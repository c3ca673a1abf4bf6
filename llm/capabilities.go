package llm

import "fmt"

// Feature names a capability a provider may lack.
type Feature string

const (
	FeatureJSONMode   Feature = "json_mode"
	FeatureStreaming  Feature = "streaming"
	FeatureVision     Feature = "vision"
	FeatureAudioInput Feature = "audio_input"
)

// Capabilities is the closed set of optional features a provider declares.
// It is owned by the registry handle and read-only elsewhere.
type Capabilities struct {
	JSONMode   bool `json:"json_mode" yaml:"json_mode"`
	Streaming  bool `json:"streaming" yaml:"streaming"`
	Vision     bool `json:"vision" yaml:"vision"`
	AudioInput bool `json:"audio_input" yaml:"audio_input"`
}

// FullCapabilities returns a set with every feature enabled.
func FullCapabilities() Capabilities {
	return Capabilities{JSONMode: true, Streaming: true, Vision: true, AudioInput: true}
}

// Supports reports whether the feature is enabled.
func (c Capabilities) Supports(f Feature) bool {
	switch f {
	case FeatureJSONMode:
		return c.JSONMode
	case FeatureStreaming:
		return c.Streaming
	case FeatureVision:
		return c.Vision
	case FeatureAudioInput:
		return c.AudioInput
	}
	return false
}

// CapabilityWarning records a request adaptation made because the target
// provider lacks a feature. Warnings never fail a request.
type CapabilityWarning struct {
	Feature  Feature `json:"feature"`
	Provider string  `json:"provider"`
	Message  string  `json:"message"`
}

func (w CapabilityWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Provider, w.Message)
}
