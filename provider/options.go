package provider

import (
	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/message"
	"github.com/mgreenly/ikigai-sub013/secret_manager"
)

// Params holds the request parameters for a single completion.
type Params struct {
	Messages          []message.Message
	Tools             []*common.Tool
	ToolChoice        common.ToolChoice
	ParallelToolCalls *bool
	Temperature       *float32
	common.ModelConfig
}

// Options combines request parameters with the secret manager used to
// resolve provider credentials at call time.
type Options struct {
	Params  Params
	Secrets secret_manager.SecretManagerContainer
}

// ActionParams returns a loggable summary of the request, omitting secrets.
func (o Options) ActionParams() map[string]any {
	return map[string]any{
		"messages":          o.Params.Messages,
		"tools":             o.Params.Tools,
		"toolChoice":        o.Params.ToolChoice,
		"model":             o.Params.Model,
		"reasoningEffort":   o.Params.ReasoningEffort,
		"provider":          o.Params.Provider,
		"temperature":       o.Params.Temperature,
		"parallelToolCalls": o.Params.ParallelToolCalls,
	}
}

// Response is the provider-agnostic result of a completed stream.
type Response struct {
	ID           string
	Model        string
	Provider     string
	Output       message.Message
	StopReason   string
	StopSequence string
	Usage        common.Usage
}
