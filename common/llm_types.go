package common

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Usage reports token accounting for a single provider response.
type Usage struct {
	InputTokens    int `json:"inputTokens"`
	OutputTokens   int `json:"outputTokens"`
	ThinkingTokens int `json:"thinkingTokens,omitempty"`
	TotalTokens    int `json:"totalTokens,omitempty"`
}

// ToolChoice controls whether and how the model must invoke a tool.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

type ToolChoiceType string

const (
	// model will decide which tool to use, if any
	ToolChoiceTypeAuto ToolChoiceType = "auto"
	// no explicit preference; provider default
	ToolChoiceTypeUnspecified ToolChoiceType = ""
	// force one specific named tool
	ToolChoiceTypeTool ToolChoiceType = "tool"
	// force any one of the given tools
	ToolChoiceTypeRequired ToolChoiceType = "required"
)

// Tool describes a callable tool's wire shape. Parameters is generated from
// ParametersType via jsonschema.Reflect so every built-in tool's input_schema
// is produced from its Go parameter struct rather than hand-maintained.
type Tool struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Parameters     *jsonschema.Schema `json:"parameters"`
	ParametersType reflect.Type       `json:"-"`
}

// NewTool builds a Tool whose Parameters schema is reflected from paramsType.
func NewTool(name, description string, paramsType reflect.Type) *Tool {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.ReflectFromType(paramsType)
	return &Tool{
		Name:           name,
		Description:    description,
		Parameters:     schema,
		ParametersType: paramsType,
	}
}

// Provider names the three built-in chat-completion providers.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return Provider(s), true
	default:
		return "", false
	}
}
