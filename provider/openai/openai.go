// Package openai adapts OpenAI's Responses streaming API to the neutral
// provider.Event stream, grounded on llm2/openai_responses_provider.go's
// event-read loop and SSE event table.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/message"
	"github.com/mgreenly/ikigai-sub013/provider"
)

const defaultModel = "gpt-5"

type Provider struct{}

func (Provider) Stream(ctx context.Context, options provider.Options, eventChan chan<- provider.Event) (*provider.Response, error) {
	token, err := options.Secrets.SecretManager.GetSecret("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(option.WithAPIKey(token))

	model := options.Params.Model
	if model == "" {
		model = defaultModel
	}

	inputItems, err := toResponsesInput(options.Params.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build input: %w", err)
	}

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems},
		Model: openai.ChatModel(model),
	}
	if options.Params.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Params.Temperature))
	}
	if len(options.Params.Tools) > 0 {
		toolsToUse := options.Params.Tools
		if options.Params.ToolChoice.Type == common.ToolChoiceTypeTool {
			toolsToUse = filterToolsByName(toolsToUse, options.Params.ToolChoice.Name)
		}
		tools, err := toResponsesTools(toolsToUse)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	params.Store = openai.Bool(false)
	if options.Params.ReasoningEffort != "" {
		params.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		params.Reasoning.Effort = shared.ReasoningEffort(options.Params.ReasoningEffort)
		params.Reasoning.Summary = shared.ReasoningSummaryAuto
	}

	eventChan <- provider.Event{Type: provider.EventStart, Model: model}

	stream := client.Responses.NewStreaming(ctx, params)

	out := message.Message{Role: message.RoleAssistant}
	var usage provider.Event
	usage.Type = provider.EventUsage
	finish := provider.FinishStop

	toolCallInProgress := -1

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data := stream.Current()
		switch ev := data.AsAny().(type) {
		case responses.ResponseOutputTextDeltaEvent:
			idx := textBlockIndex(&out)
			eventChan <- provider.Event{Type: provider.EventTextDelta, Index: idx, Text: ev.Delta}
			appendText(&out, idx, ev.Delta)

		case responses.ResponseReasoningSummaryTextDeltaEvent:
			idx := reasoningBlockIndex(&out)
			eventChan <- provider.Event{Type: provider.EventThinkingDelta, Index: idx, Text: ev.Delta}
			appendReasoning(&out, idx, ev.Delta)

		case responses.ResponseOutputItemAddedEvent:
			if ev.Item.Type == "function_call" {
				if toolCallInProgress >= 0 {
					eventChan <- provider.Event{Type: provider.EventToolCallDone, Index: toolCallInProgress}
				}
				idx := len(out.Content)
				out.Content = append(out.Content, message.ContentBlock{
					Type:    message.ContentBlockTypeToolUse,
					ToolUse: &message.ToolUseBlock{ID: ev.Item.CallID, Name: ev.Item.Name},
				})
				toolCallInProgress = idx
				eventChan <- provider.Event{Type: provider.EventToolCallStart, Index: idx, ID: ev.Item.CallID, Name: ev.Item.Name}
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			if toolCallInProgress >= 0 {
				out.Content[toolCallInProgress].ToolUse.Arguments += ev.Delta
				eventChan <- provider.Event{Type: provider.EventToolCallDelta, Index: toolCallInProgress, ArgumentsFragment: ev.Delta}
			}

		case responses.ResponseOutputItemDoneEvent:
			if toolCallInProgress >= 0 && ev.Item.Type == "function_call" {
				eventChan <- provider.Event{Type: provider.EventToolCallDone, Index: toolCallInProgress}
				toolCallInProgress = -1
			}

		case responses.ResponseCompletedEvent:
			resp := ev.Response
			if resp.Usage.InputTokens > 0 {
				usage.InputTokens = int(resp.Usage.InputTokens)
			}
			if resp.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(resp.Usage.OutputTokens)
			}
			if resp.Usage.OutputTokensDetails.ReasoningTokens > 0 {
				usage.ThinkingTokens = int(resp.Usage.OutputTokensDetails.ReasoningTokens)
			}
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			if resp.Status == responses.ResponseStatusIncomplete {
				finish = provider.FinishLength
			}

		case responses.ErrorEvent:
			eventChan <- provider.Event{Type: provider.EventError, ErrorMessage: ev.Message, Retryable: false}
			return nil, fmt.Errorf("openai stream error: %s", ev.Message)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	if toolCallInProgress >= 0 {
		eventChan <- provider.Event{Type: provider.EventToolCallDone, Index: toolCallInProgress}
		finish = provider.FinishToolCalls
	}

	eventChan <- usage
	eventChan <- provider.Event{
		Type: provider.EventDone, FinishReason: finish,
		InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
		ThinkingTokens: usage.ThinkingTokens, TotalTokens: usage.TotalTokens,
	}

	return &provider.Response{
		Model: model, Provider: "openai", Output: out,
		StopReason: string(finish),
		Usage:      common.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, ThinkingTokens: usage.ThinkingTokens, TotalTokens: usage.TotalTokens},
	}, nil
}

func textBlockIndex(m *message.Message) int {
	if n := len(m.Content); n > 0 && m.Content[n-1].Type == message.ContentBlockTypeText {
		return n - 1
	}
	m.Content = append(m.Content, message.ContentBlock{Type: message.ContentBlockTypeText})
	return len(m.Content) - 1
}

func reasoningBlockIndex(m *message.Message) int {
	if n := len(m.Content); n > 0 && m.Content[n-1].Type == message.ContentBlockTypeReasoning {
		return n - 1
	}
	m.Content = append(m.Content, message.ContentBlock{Type: message.ContentBlockTypeReasoning, Reasoning: &message.ReasoningBlock{}})
	return len(m.Content) - 1
}

func appendText(m *message.Message, idx int, delta string) {
	m.Content[idx].Text += delta
}

func appendReasoning(m *message.Message, idx int, delta string) {
	m.Content[idx].Reasoning.Summary += delta
}

func filterToolsByName(tools []*common.Tool, name string) []*common.Tool {
	for _, t := range tools {
		if t.Name == name {
			return []*common.Tool{t}
		}
	}
	return tools
}

func toResponsesTools(tools []*common.Tool) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, err
		}
		var params map[string]any
		if err := json.Unmarshal(schema, &params); err != nil {
			return nil, err
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out, nil
}

// toResponsesInput serializes neutral messages per the wire rules: a
// single-text-block message is a plain string, anything else an array of
// typed content parts; tool-result blocks become function_call_output items.
func toResponsesInput(messages []message.Message) (responses.ResponseInputParam, error) {
	var items responses.ResponseInputParam
	for _, m := range messages {
		for _, b := range m.Content {
			if b.Type == message.ContentBlockTypeToolResult {
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(b.ToolResult.ToolCallID, b.ToolResult.Text))
			}
		}
		if hasOnlyToolResults(m.Content) {
			continue
		}
		role := string(m.Role)
		if len(m.Content) == 1 && m.Content[0].Type == message.ContentBlockTypeText {
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content[0].Text, responses.EasyInputMessageRole(role)))
			continue
		}
		var parts responses.ResponseInputMessageContentListParam
		for _, b := range m.Content {
			if b.Type == message.ContentBlockTypeText {
				parts = append(parts, responses.ResponseInputContentParamOfInputText(b.Text))
			}
		}
		if len(parts) > 0 {
			items = append(items, responses.ResponseInputItemParamOfInputMessage(parts, responses.EasyInputMessageRole(role)))
		}
	}
	return items, nil
}

func hasOnlyToolResults(blocks []message.ContentBlock) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type != message.ContentBlockTypeToolResult {
			return false
		}
	}
	return true
}
