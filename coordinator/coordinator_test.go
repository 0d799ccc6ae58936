package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/message"
)

// fakeStore is an in-memory Store/Tx used to exercise Fork without a real
// database, the same role srv/sqlite's in-memory test helpers play for the
// teacher's own storage tests.
type fakeStore struct {
	agents       []AgentRecord
	forkMessages int
}

func (s *fakeStore) InsertAgentTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(s)
}

func (s *fakeStore) InsertAgent(ctx context.Context, a AgentRecord) error {
	s.agents = append(s.agents, a)
	return nil
}

func (s *fakeStore) InsertForkMessage(ctx context.Context, sessionID, agentUUID, role, childUUID string) error {
	s.forkMessages++
	return nil
}

func msgText(text string) message.Message {
	return message.Message{Role: message.RoleUser, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: text}}}
}

func msgAssistantText(text string) message.Message {
	return message.Message{Role: message.RoleAssistant, Content: []message.ContentBlock{{Type: message.ContentBlockTypeText, Text: text}}}
}

func newTestCoordinator() (*Coordinator, *agent.Agent, *fakeStore) {
	store := &fakeStore{}
	c := New("session-1", store)
	root := agent.New("", "anthropic", "claude-sonnet", agent.ThinkingNone)
	c.AddRoot(root)
	return c, root, store
}

func TestFindAgent(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, root, c.FindAgent(root.UUID))
	})

	t.Run("unique prefix matches", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, root, c.FindAgent(root.UUID[:6]))
	})

	t.Run("unknown prefix returns nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, c.FindAgent("zzzzzzzz"))
	})
}

func TestForkUserInitiated(t *testing.T) {
	t.Parallel()

	c, root, store := newTestCoordinator()
	root.AddMessage(msgText("hi"))
	root.AddMessage(msgAssistantText("hello"))

	child, err := c.Fork(context.Background(), ForkOptions{Parent: root, UserInitiated: true, Prompt: "keep going"})
	require.NoError(t, err)

	assert.Equal(t, root.UUID, child.ParentUUID)
	assert.Equal(t, root.Provider, child.Provider)
	assert.Equal(t, int64(2), child.ForkMessageID)
	assert.Equal(t, child.UUID, c.Current().UUID, "fork switches current to the child")
	assert.Len(t, store.agents, 1)
	assert.Equal(t, 2, store.forkMessages)

	got := child.Messages()
	require.Len(t, got, 3, "cloned history (2) plus the trailing prompt (1)")
	assert.Equal(t, "keep going", got[2].Content[0].Text)
}

func TestForkToolInitiated(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	root.AddMessage(msgText("do the thing"))
	root.AddMessage(msgAssistantText("working on it"))

	child, err := c.Fork(context.Background(), ForkOptions{Parent: root, Prompt: "sub-task instructions"})
	require.NoError(t, err)

	got := child.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "working on it", got[0].Content[0].Text)
	assert.Equal(t, "forked_context", got[0].Content[0].ProviderMetadata)
	assert.Equal(t, "sub-task instructions", got[1].Content[0].Text)
}

func TestForkRejectsConcurrentFork(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	require.True(t, root.TryBeginFork())

	_, err := c.Fork(context.Background(), ForkOptions{Parent: root})
	assert.ErrorIs(t, err, ErrForkInProgress)
}

func TestKill(t *testing.T) {
	t.Parallel()

	t.Run("cannot kill root", func(t *testing.T) {
		t.Parallel()
		c, root, _ := newTestCoordinator()
		err := c.Kill(context.Background(), root.UUID, root.UUID, func(context.Context, string) error { return nil })
		assert.ErrorIs(t, err, ErrCannotKillRoot)
	})

	t.Run("cannot kill own ancestor", func(t *testing.T) {
		t.Parallel()
		c, root, _ := newTestCoordinator()
		child, err := c.Fork(context.Background(), ForkOptions{Parent: root, UserInitiated: true})
		require.NoError(t, err)

		err = c.Kill(context.Background(), root.UUID, child.UUID, func(context.Context, string) error { return nil })
		assert.ErrorIs(t, err, ErrCannotKillParent)
	})

	t.Run("killing current reassigns current", func(t *testing.T) {
		t.Parallel()
		c, root, _ := newTestCoordinator()
		child, err := c.Fork(context.Background(), ForkOptions{Parent: root, UserInitiated: true})
		require.NoError(t, err)
		require.Equal(t, child.UUID, c.Current().UUID)

		err = c.Kill(context.Background(), child.UUID, child.UUID, func(context.Context, string) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, root.UUID, c.Current().UUID)
	})

	t.Run("falls back to root when parent is already dead", func(t *testing.T) {
		t.Parallel()
		c, root, _ := newTestCoordinator()
		child, err := c.Fork(context.Background(), ForkOptions{Parent: root, UserInitiated: true})
		require.NoError(t, err)
		grandchild, err := c.Fork(context.Background(), ForkOptions{Parent: child, UserInitiated: true})
		require.NoError(t, err)
		require.Equal(t, grandchild.UUID, c.Current().UUID)

		require.NoError(t, c.Kill(context.Background(), child.UUID, root.UUID, func(context.Context, string) error { return nil }))

		err = c.Kill(context.Background(), grandchild.UUID, grandchild.UUID, func(context.Context, string) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, root.UUID, c.Current().UUID)
	})
}

func TestForkWaitsForParentToolThread(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	root.SetToolThreadRunning(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Fork(context.Background(), ForkOptions{Parent: root, UserInitiated: true})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("Fork returned before the parent's tool thread finished")
	case <-time.After(100 * time.Millisecond):
	}

	root.SetToolThreadRunning(false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Fork never resumed once the tool thread finished")
	}
}

func TestForkCanceledWhileWaitingForToolThread(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	root.SetToolThreadRunning(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fork(ctx, ForkOptions{Parent: root, UserInitiated: true})
	assert.ErrorIs(t, err, context.Canceled)
}
