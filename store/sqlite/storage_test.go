package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgreenly/ikigai-sub013/coordinator"
	"github.com/mgreenly/ikigai-sub013/mailbus"
	"github.com/mgreenly/ikigai-sub013/message"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	require.NoError(t, s.InsertSession(context.Background(), "sess-1", "test session"))
}

func TestAgentCRUD(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))

	err := s.InsertAgent(ctx, AgentRow{
		UUID: "agent-1", SessionID: "sess-1", Status: "running",
		Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	got, err := s.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "running", got.Status)

	require.NoError(t, s.MarkAgentDead(ctx, "agent-1"))
	got, err = s.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "dead", got.Status)
	assert.True(t, got.EndedAt.Valid)

	_, err = s.GetAgent(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	agents, err := s.ListAgents(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestMessageHistoryRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))
	require.NoError(t, s.InsertAgent(ctx, AgentRow{
		UUID: "agent-1", SessionID: "sess-1", Status: "running",
		Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none", CreatedAt: time.Now(),
	}))

	userMsg := message.Message{Role: message.RoleUser, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: "hi"}}}
	assistantMsg := message.Message{Role: message.RoleAssistant, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: "hello"}}}

	_, err := s.InsertMessage(ctx, "sess-1", "agent-1", MessageKindUser, userMsg, "")
	require.NoError(t, err)
	_, err = s.InsertMessage(ctx, "sess-1", "agent-1", MessageKindAssistant, assistantMsg, "")
	require.NoError(t, err)

	history, systemPrompt, err := s.LoadHistory(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content[0].Text)
	assert.Empty(t, systemPrompt)
}

func TestMessageHistoryResetsOnClear(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))
	require.NoError(t, s.InsertAgent(ctx, AgentRow{
		UUID: "agent-1", SessionID: "sess-1", Status: "running",
		Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none", CreatedAt: time.Now(),
	}))

	before := message.Message{Role: message.RoleUser, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: "before clear"}}}
	after := message.Message{Role: message.RoleUser, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: "after clear"}}}

	_, err := s.InsertMessage(ctx, "sess-1", "agent-1", MessageKindUser, before, "")
	require.NoError(t, err)
	_, err = s.InsertMessage(ctx, "sess-1", "agent-1", MessageKindClear, message.Message{}, "")
	require.NoError(t, err)
	_, err = s.InsertMessage(ctx, "sess-1", "agent-1", MessageKindUser, after, "")
	require.NoError(t, err)

	history, _, err := s.LoadHistory(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, history, 1, "a clear boundary must drop everything before it")
	assert.Equal(t, "after clear", history[0].Content[0].Text)
}

func TestMailCRUD(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))

	id, err := s.InsertMail(ctx, mailbus.Mail{SessionID: "sess-1", FromUUID: "a", ToUUID: "b", Body: "hi", Timestamp: time.Now()})
	require.NoError(t, err)
	require.Positive(t, id)

	unread, err := s.UnreadMail(ctx, "b")
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, s.MarkRead(ctx, []int64{id}))
	unread, err = s.UnreadMail(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarks(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))
	require.NoError(t, s.InsertAgent(ctx, AgentRow{
		UUID: "agent-1", SessionID: "sess-1", Status: "running",
		Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none", CreatedAt: time.Now(),
	}))

	id1, err := s.InsertMark(ctx, MarkRow{SessionID: "sess-1", AgentUUID: "agent-1", Label: "one", MessageIndex: 1})
	require.NoError(t, err)
	require.Positive(t, id1)
	_, err = s.InsertMark(ctx, MarkRow{SessionID: "sess-1", AgentUUID: "agent-1", Label: "two", MessageIndex: 5})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMarksAfter(ctx, "agent-1", 1))

	row := s.QueryRowContext(ctx, `SELECT count(*) FROM marks WHERE agent_uuid = ?`, "agent-1")
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestForkTxCommitsBothInserts(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))
	require.NoError(t, s.InsertAgent(ctx, AgentRow{
		UUID: "parent", SessionID: "sess-1", Status: "running",
		Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none", CreatedAt: time.Now(),
	}))

	err := s.InsertAgentTx(ctx, func(tx coordinator.Tx) error {
		if err := tx.InsertAgent(ctx, coordinator.AgentRecord{
			UUID: "child", SessionID: "sess-1", ParentUUID: "parent",
			Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none",
		}); err != nil {
			return err
		}
		return tx.InsertForkMessage(ctx, "sess-1", "parent", "parent", "child")
	})
	require.NoError(t, err)

	child, err := s.GetAgent(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, "parent", child.ParentUUID.String)

	row := s.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE kind = 'fork' AND agent_uuid = ?`, "parent")
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestForkTxRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertSession(ctx, "sess-1", ""))

	err := s.InsertAgentTx(ctx, func(tx coordinator.Tx) error {
		if err := tx.InsertAgent(ctx, coordinator.AgentRecord{
			UUID: "orphan", SessionID: "sess-1", Provider: "anthropic", Model: "claude-sonnet", ThinkingLevel: "none",
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = s.GetAgent(ctx, "orphan")
	assert.ErrorIs(t, err, ErrNotFound, "a failed transaction must not leave a partial agent row")
}
