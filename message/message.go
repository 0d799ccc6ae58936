// Package message defines the provider-agnostic conversation model shared by
// every agent: a Message is a role plus an ordered list of content blocks,
// generalized from llm2's neutral message shape to also round-trip through
// the store and to clone cheaply across fork.
package message

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeFile       ContentBlockType = "file"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
	ContentBlockTypeRefusal    ContentBlockType = "refusal"
	ContentBlockTypeReasoning  ContentBlockType = "reasoning"
)

type ImageRef struct {
	URL string `json:"url,omitempty"`
}

type FileRef struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type RefusalBlock struct {
	Reason string `json:"reason,omitempty"`
}

type ReasoningBlock struct {
	Text             string `json:"text"`
	Summary          string `json:"summary,omitempty"`
	EncryptedContent string `json:"encryptedContent,omitempty"`
}

type ToolUseBlock struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string, accumulated while streaming
}

type ToolResultBlock struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
	Text       string `json:"text,omitempty"`
}

// ContentBlock is one unit within a Message's Content slice. Exactly one of
// the typed payload fields is populated, matching Type.
type ContentBlock struct {
	ID           string           `json:"id,omitempty"`
	Type         ContentBlockType `json:"type"`
	Text         string           `json:"text,omitempty"`
	Image        *ImageRef        `json:"image,omitempty"`
	File         *FileRef         `json:"file,omitempty"`
	ToolUse      *ToolUseBlock    `json:"toolUse,omitempty"`
	ToolResult   *ToolResultBlock `json:"toolResult,omitempty"`
	Refusal      *RefusalBlock    `json:"refusal,omitempty"`
	Reasoning    *ReasoningBlock  `json:"reasoning,omitempty"`
	// ProviderMetadata carries out-of-band annotations that aren't part of
	// the wire content itself, e.g. "forked_context" on a synthetic leading
	// message inserted by a tool-initiated fork.
	ProviderMetadata string `json:"providerMetadata,omitempty"`
}

// Message is one turn in an agent's history.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ByteSize estimates the wire size of a message, used to enforce CloneAll's
// maxBytes limit (DefaultMaxMessageBytes when 0) when cloning during fork.
func (m Message) ByteSize() int {
	b, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(b)
}

// Clone deep-copies a message and all its content blocks. Unlike the
// original's talloc-arena message cloning, this is a plain value copy: Go's
// garbage collector owns the lifetime, there is no arena to exhaust, and the
// only failure mode worth modeling is a single oversized message (see
// maxBytes in CloneAll).
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Content: make([]ContentBlock, len(m.Content))}
	for i, b := range m.Content {
		out.Content[i] = b.clone()
	}
	return out
}

func (b ContentBlock) clone() ContentBlock {
	out := b
	if b.Image != nil {
		img := *b.Image
		out.Image = &img
	}
	if b.File != nil {
		f := *b.File
		out.File = &f
	}
	if b.ToolUse != nil {
		tu := *b.ToolUse
		out.ToolUse = &tu
	}
	if b.ToolResult != nil {
		tr := *b.ToolResult
		out.ToolResult = &tr
	}
	if b.Refusal != nil {
		r := *b.Refusal
		out.Refusal = &r
	}
	if b.Reasoning != nil {
		rs := *b.Reasoning
		out.Reasoning = &rs
	}
	return out
}

// LastNonThinkingAssistantText returns the text of the last assistant
// message's last non-reasoning, non-empty text block, used to seed a
// tool-initiated fork's synthetic leading message.
func LastNonThinkingAssistantText(history []Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != RoleAssistant {
			continue
		}
		for j := len(msg.Content) - 1; j >= 0; j-- {
			b := msg.Content[j]
			if b.Type == ContentBlockTypeText && b.Text != "" {
				return b.Text, true
			}
		}
		return "", false
	}
	return "", false
}
