package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClone(t *testing.T) {
	t.Parallel()

	t.Run("deep copies pointer fields", func(t *testing.T) {
		t.Parallel()
		orig := Message{
			Role: RoleAssistant,
			Content: []ContentBlock{
				{Type: ContentBlockTypeText, Text: "hello"},
				{Type: ContentBlockTypeToolUse, ToolUse: &ToolUseBlock{ID: "1", Name: "bash", Arguments: "{}"}},
			},
		}
		clone := orig.Clone()
		require.Len(t, clone.Content, 2)

		clone.Content[1].ToolUse.Arguments = "mutated"
		assert.Equal(t, "{}", orig.Content[1].ToolUse.Arguments, "mutating the clone must not affect the original")
	})

	t.Run("empty content round-trips", func(t *testing.T) {
		t.Parallel()
		orig := Message{Role: RoleUser}
		clone := orig.Clone()
		assert.Equal(t, RoleUser, clone.Role)
		assert.Empty(t, clone.Content)
	})
}

func TestMessageByteSize(t *testing.T) {
	t.Parallel()

	small := Message{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "hi"}}}
	large := Message{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: strings.Repeat("x", 10000)}}}

	assert.Less(t, small.ByteSize(), large.ByteSize())
	assert.Positive(t, small.ByteSize())
}

func TestCloneAll(t *testing.T) {
	t.Parallel()

	t.Run("clones everything under the limit", func(t *testing.T) {
		t.Parallel()
		history := []Message{
			{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "hi"}}},
			{Role: RoleAssistant, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "hello"}}},
		}
		cloned, err := CloneAll(history, DefaultMaxMessageBytes)
		require.NoError(t, err)
		require.Len(t, cloned, 2)
		assert.Equal(t, history[0].Content[0].Text, cloned[0].Content[0].Text)
	})

	t.Run("rejects an oversized message", func(t *testing.T) {
		t.Parallel()
		history := []Message{
			{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: strings.Repeat("x", 1000)}}},
		}
		_, err := CloneAll(history, 10)
		require.Error(t, err)
	})
}

func TestLastNonThinkingAssistantText(t *testing.T) {
	t.Parallel()

	t.Run("skips reasoning blocks to find the text block", func(t *testing.T) {
		t.Parallel()
		history := []Message{
			{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "question"}}},
			{Role: RoleAssistant, Content: []ContentBlock{
				{Type: ContentBlockTypeReasoning, Reasoning: &ReasoningBlock{Text: "thinking..."}},
				{Type: ContentBlockTypeText, Text: "the answer"},
			}},
		}
		text, ok := LastNonThinkingAssistantText(history)
		require.True(t, ok)
		assert.Equal(t, "the answer", text)
	})

	t.Run("no assistant message returns false", func(t *testing.T) {
		t.Parallel()
		history := []Message{{Role: RoleUser, Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "hi"}}}}
		_, ok := LastNonThinkingAssistantText(history)
		assert.False(t, ok)
	})
}
