package llm

import (
	"strings"
	"unicode"

	"github.com/smartyhouses/muxi-llm/types"
)

// ModelID is a parsed "<provider>/<model>" identifier.
type ModelID struct {
	Provider string
	Model    string
}

func (id ModelID) String() string {
	return id.Provider + "/" + id.Model
}

// ParseModelID splits s on its first "/". The provider tag must be non-empty
// and free of whitespace; the model name must be non-empty and may itself
// contain "/".
func ParseModelID(s string) (ModelID, error) {
	tag, model, ok := strings.Cut(s, "/")
	if !ok {
		return ModelID{}, invalidModelID(s, "expected <provider>/<model>")
	}
	if tag == "" {
		return ModelID{}, invalidModelID(s, "empty provider")
	}
	if strings.IndexFunc(tag, unicode.IsSpace) >= 0 {
		return ModelID{}, invalidModelID(s, "provider contains whitespace")
	}
	if strings.TrimSpace(model) == "" {
		return ModelID{}, invalidModelID(s, "empty model name")
	}
	return ModelID{Provider: tag, Model: model}, nil
}

func invalidModelID(s, reason string) *types.Error {
	return types.Errorf(types.ErrInvalidModelID, "invalid model id %q: %s", s, reason).
		WithStage(types.StageValidation)
}
