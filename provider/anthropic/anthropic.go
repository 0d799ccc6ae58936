// Package anthropic adapts Anthropic's Messages streaming API to the
// neutral provider.Event stream, grounded on llm2/anthropic_provider.go's
// blockIndexMap event-read loop.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/message"
	"github.com/mgreenly/ikigai-sub013/provider"
)

const defaultModel = "claude-sonnet-4-5-20250929"

type Provider struct{}

// budgetTokens derives Anthropic's extended-thinking token budget from the
// agent's thinking_level, clamped below maxTokens.
func budgetTokens(level string, maxTokens int) int64 {
	var budget int64
	switch level {
	case "low":
		budget = 5000
	case "medium":
		budget = 10000
	case "high":
		budget = 20000
	default:
		return 0
	}
	if maxTokens > 0 && budget >= int64(maxTokens) {
		budget = int64(maxTokens) - 1
	}
	return budget
}

func (Provider) Stream(ctx context.Context, options provider.Options, eventChan chan<- provider.Event) (*provider.Response, error) {
	token, err := options.Secrets.SecretManager.GetSecret("ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	client := anthropic.NewClient(option.WithAPIKey(token))

	model := options.Params.Model
	if model == "" {
		model = defaultModel
	}

	msgParams, err := toAnthropicMessages(options.Params.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	maxTokens := options.Params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgParams,
		MaxTokens: int64(maxTokens),
	}
	if options.Params.Temperature != nil {
		params.Temperature = anthropic.Opt(float64(*options.Params.Temperature))
	}
	if b := budgetTokens(options.Params.ReasoningEffort, maxTokens); b > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(b)
	}
	if len(options.Params.Tools) > 0 {
		tools, err := toAnthropicTools(options.Params.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	eventChan <- provider.Event{Type: provider.EventStart, Model: model}

	stream := client.Messages.NewStreaming(ctx, params)

	out := message.Message{Role: message.RoleAssistant}
	blockIndexMap := make(map[int64]int)
	var usage provider.Event
	usage.Type = provider.EventUsage
	finish := provider.FinishStop
	var signatureBuf string

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		evt := stream.Current()

		switch ev := evt.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens += int(ev.Message.Usage.InputTokens)

		case anthropic.ContentBlockStartEvent:
			idx := len(out.Content)
			blockIndexMap[ev.Index] = idx

			switch block := ev.ContentBlock.AsAny().(type) {
			case anthropic.TextBlock:
				out.Content = append(out.Content, message.ContentBlock{Type: message.ContentBlockTypeText, Text: block.Text})
			case anthropic.ThinkingBlock:
				out.Content = append(out.Content, message.ContentBlock{Type: message.ContentBlockTypeReasoning, Reasoning: &message.ReasoningBlock{Text: block.Thinking}})
			case anthropic.ToolUseBlock:
				out.Content = append(out.Content, message.ContentBlock{
					Type:    message.ContentBlockTypeToolUse,
					ToolUse: &message.ToolUseBlock{ID: block.ID, Name: block.Name},
				})
				eventChan <- provider.Event{Type: provider.EventToolCallStart, Index: idx, ID: block.ID, Name: block.Name}
			}

		case anthropic.ContentBlockDeltaEvent:
			idx, ok := blockIndexMap[ev.Index]
			if !ok {
				continue
			}
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				out.Content[idx].Text += delta.Text
				eventChan <- provider.Event{Type: provider.EventTextDelta, Index: idx, Text: delta.Text}
			case anthropic.ThinkingDelta:
				out.Content[idx].Reasoning.Text += delta.Thinking
				eventChan <- provider.Event{Type: provider.EventThinkingDelta, Index: idx, Text: delta.Thinking}
			case anthropic.SignatureDelta:
				signatureBuf += delta.Signature
			case anthropic.InputJSONDelta:
				out.Content[idx].ToolUse.Arguments += delta.PartialJSON
				eventChan <- provider.Event{Type: provider.EventToolCallDelta, Index: idx, ArgumentsFragment: delta.PartialJSON}
			}

		case anthropic.ContentBlockStopEvent:
			idx, ok := blockIndexMap[ev.Index]
			if !ok {
				continue
			}
			if out.Content[idx].Type == message.ContentBlockTypeReasoning && signatureBuf != "" {
				out.Content[idx].Reasoning.EncryptedContent = signatureBuf
				signatureBuf = ""
			}
			if out.Content[idx].Type == message.ContentBlockTypeToolUse {
				eventChan <- provider.Event{Type: provider.EventToolCallDone, Index: idx}
			}

		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason != "" {
				finish = mapStopReason(string(ev.Delta.StopReason))
			}
			usage.OutputTokens += int(ev.Usage.OutputTokens)

		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	eventChan <- usage
	eventChan <- provider.Event{
		Type: provider.EventDone, FinishReason: finish,
		InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, TotalTokens: usage.TotalTokens,
	}

	return &provider.Response{
		Model: model, Provider: "anthropic", Output: out, StopReason: string(finish),
		Usage: common.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, TotalTokens: usage.TotalTokens},
	}, nil
}

func mapStopReason(reason string) provider.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return provider.FinishStop
	case "tool_use":
		return provider.FinishToolCalls
	case "max_tokens":
		return provider.FinishLength
	default:
		return provider.FinishOther
	}
}

// toAnthropicMessages sends every message's content as an array of content
// blocks, a message holding a single text block included; internal
// tool-result blocks (no distinct Anthropic tool role) are emitted under the
// user role.
func toAnthropicMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.Role == message.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			block, err := toAnthropicBlock(b)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		if role == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(blocks...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return result, nil
}

func toAnthropicBlock(b message.ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch b.Type {
	case message.ContentBlockTypeText:
		return anthropic.NewTextBlock(b.Text), nil
	case message.ContentBlockTypeToolUse:
		return anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
			ID: b.ToolUse.ID, Name: b.ToolUse.Name, Input: b.ToolUse.Arguments,
		}}, nil
	case message.ContentBlockTypeToolResult:
		return anthropic.NewToolResultBlock(b.ToolResult.ToolCallID, b.ToolResult.Text, b.ToolResult.IsError), nil
	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported content block type: %s", b.Type)
	}
}

func toAnthropicTools(tools []*common.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
			},
		})
	}
	return out, nil
}
