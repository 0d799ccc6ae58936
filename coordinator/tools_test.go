package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgreenly/ikigai-sub013/agent"
	"github.com/mgreenly/ikigai-sub013/mailbus"
)

// fakeMailStore is an in-memory mailbus.Store, the same role fakeStore plays
// in mailbus's own tests.
type fakeMailStore struct {
	mu     sync.Mutex
	nextID int64
	mail   []mailbus.Mail
}

func (s *fakeMailStore) InsertMail(ctx context.Context, m mailbus.Mail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.mail = append(s.mail, m)
	return m.ID, nil
}

func (s *fakeMailStore) UnreadMail(ctx context.Context, toUUID string) ([]mailbus.Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mailbus.Mail
	for _, m := range s.mail {
		if m.ToUUID == toUUID && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMailStore) MarkRead(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for i := range s.mail {
		if idSet[s.mail[i].ID] {
			s.mail[i].Read = true
		}
	}
	return nil
}

func TestWaitFanInReceived(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	bus := mailbus.New(&fakeMailStore{})
	other := agent.New("", "anthropic", "claude-sonnet", agent.ThinkingNone)
	c.AddAgent(other)

	require.NoError(t, bus.Send(context.Background(), "session-1", other.UUID, root.UUID, "done"))

	snapshots, err := c.waitFanIn(context.Background(), bus, root, []string{other.UUID}, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, TargetSnapshot{AgentUUID: other.UUID, Status: "received", Message: "done"}, snapshots[0])
}

func TestWaitFanInStatusesWithoutMail(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	bus := mailbus.New(&fakeMailStore{})

	idle := agent.New("", "anthropic", "claude-sonnet", agent.ThinkingNone)
	c.AddAgent(idle)

	running := agent.New("", "anthropic", "claude-sonnet", agent.ThinkingNone)
	running.SetState(agent.StateStreaming)
	c.AddAgent(running)

	deadUUID := "agent-not-live"

	snapshots, err := c.waitFanIn(context.Background(), bus, root, []string{idle.UUID, running.UUID, deadUUID}, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, TargetSnapshot{AgentUUID: idle.UUID, Status: "idle"}, snapshots[0])
	assert.Equal(t, TargetSnapshot{AgentUUID: running.UUID, Status: "running"}, snapshots[1])
	assert.Equal(t, TargetSnapshot{AgentUUID: deadUUID, Status: "dead"}, snapshots[2])
}

func TestWaitFanInReturnsOnInterrupt(t *testing.T) {
	t.Parallel()

	c, root, _ := newTestCoordinator()
	bus := mailbus.New(&fakeMailStore{})
	other := agent.New("", "anthropic", "claude-sonnet", agent.ThinkingNone)
	c.AddAgent(other)
	root.RequestInterrupt()

	start := time.Now()
	snapshots, err := c.waitFanIn(context.Background(), bus, root, []string{other.UUID}, 10*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "idle", snapshots[0].Status)
}
