// Package google adapts the Gemini API (google.golang.org/genai) to the
// neutral provider.Event stream: Part.Thought text maps to ThinkingDelta,
// plain text to TextDelta, and a FunctionCall part (Gemini never fragments
// call arguments across chunks) maps to a single
// ToolCallStart/ToolCallDelta/ToolCallDone triple.
package google

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/mgreenly/ikigai-sub013/common"
	"github.com/mgreenly/ikigai-sub013/message"
	"github.com/mgreenly/ikigai-sub013/provider"
)

const defaultModel = "gemini-2.5-pro"

type Provider struct{}

func (Provider) Stream(ctx context.Context, options provider.Options, eventChan chan<- provider.Event) (*provider.Response, error) {
	token, err := options.Secrets.SecretManager.GetSecret("GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := options.Params.Model
	if model == "" {
		model = defaultModel
	}

	contents, systemInstruction := toGenaiContents(options.Params.Messages)

	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if options.Params.Temperature != nil {
		t := float32(*options.Params.Temperature)
		config.Temperature = &t
	}
	if len(options.Params.Tools) > 0 {
		tool, err := toGenaiTool(options.Params.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		config.Tools = []*genai.Tool{tool}
	}

	eventChan <- provider.Event{Type: provider.EventStart, Model: model}

	stream := client.Models.GenerateContentStream(ctx, model, contents, config)

	out := message.Message{Role: message.RoleAssistant}
	var usage provider.Event
	usage.Type = provider.EventUsage
	finish := provider.FinishStop
	toolCallSeen := false

	for chunk, err := range stream {
		if err != nil {
			eventChan <- provider.Event{Type: provider.EventError, ErrorMessage: err.Error()}
			return nil, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		if chunk.UsageMetadata != nil {
			usage.InputTokens = int(chunk.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(chunk.UsageMetadata.CandidatesTokenCount)
			usage.ThinkingTokens = int(chunk.UsageMetadata.ThoughtsTokenCount)
		}

		for _, cand := range chunk.Candidates {
			if cand.FinishReason != "" {
				finish = mapFinishReason(string(cand.FinishReason))
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					idx := len(out.Content)
					args, _ := json.Marshal(part.FunctionCall.Args)
					out.Content = append(out.Content, message.ContentBlock{
						Type:    message.ContentBlockTypeToolUse,
						ToolUse: &message.ToolUseBlock{ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Arguments: string(args)},
					})
					eventChan <- provider.Event{Type: provider.EventToolCallStart, Index: idx, ID: part.FunctionCall.ID, Name: part.FunctionCall.Name}
					eventChan <- provider.Event{Type: provider.EventToolCallDelta, Index: idx, ArgumentsFragment: string(args)}
					eventChan <- provider.Event{Type: provider.EventToolCallDone, Index: idx}
					toolCallSeen = true

				case part.Thought && part.Text != "":
					idx := reasoningBlockIndex(&out)
					out.Content[idx].Reasoning.Text += part.Text
					eventChan <- provider.Event{Type: provider.EventThinkingDelta, Index: idx, Text: part.Text}

				case part.Text != "":
					idx := textBlockIndex(&out)
					out.Content[idx].Text += part.Text
					eventChan <- provider.Event{Type: provider.EventTextDelta, Index: idx, Text: part.Text}
				}
			}
		}
	}

	if toolCallSeen {
		finish = provider.FinishToolCalls
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens + usage.ThinkingTokens
	eventChan <- usage
	eventChan <- provider.Event{
		Type: provider.EventDone, FinishReason: finish,
		InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
		ThinkingTokens: usage.ThinkingTokens, TotalTokens: usage.TotalTokens,
	}

	return &provider.Response{
		Model: model, Provider: "google", Output: out, StopReason: string(finish),
		Usage: common.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, ThinkingTokens: usage.ThinkingTokens, TotalTokens: usage.TotalTokens},
	}, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "STOP":
		return provider.FinishStop
	case "MAX_TOKENS":
		return provider.FinishLength
	case "SAFETY", "RECITATION":
		return provider.FinishContentFilter
	default:
		return provider.FinishOther
	}
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

func toGenaiContents(messages []message.Message) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			parts := make([]*genai.Part, 0, len(m.Content))
			for _, b := range m.Content {
				if b.Type == message.ContentBlockTypeText {
					parts = append(parts, genai.NewPartFromText(b.Text))
				}
			}
			systemInstruction = &genai.Content{Parts: parts}
			continue
		}
		role := genai.RoleUser
		if m.Role == message.RoleAssistant {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case message.ContentBlockTypeText:
				parts = append(parts, genai.NewPartFromText(b.Text))
			case message.ContentBlockTypeToolUse:
				var args map[string]any
				_ = json.Unmarshal([]byte(b.ToolUse.Arguments), &args)
				parts = append(parts, genai.NewPartFromFunctionCall(b.ToolUse.Name, args))
			case message.ContentBlockTypeToolResult:
				parts = append(parts, genai.NewPartFromFunctionResponse(b.ToolResult.Name, map[string]any{"result": b.ToolResult.Text}))
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, systemInstruction
}

func toGenaiTool(tools []*common.Tool) (*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schemaJSON, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, err
		}
		var schema genai.Schema
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, err
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name: t.Name, Description: t.Description, Parameters: &schema,
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}, nil
}
