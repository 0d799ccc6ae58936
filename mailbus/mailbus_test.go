package mailbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store, filling the role store/sqlite.Storage
// plays in production without needing a real database.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	mail   []Mail
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) InsertMail(ctx context.Context, m Mail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.mail = append(s.mail, m)
	return m.ID, nil
}

func (s *fakeStore) UnreadMail(ctx context.Context, toUUID string) ([]Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Mail
	for _, m := range s.mail {
		if m.ToUUID == toUUID && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRead(ctx context.Context, ids []int64) error {
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

func TestBusSendAndWait(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := New(store)

	require.NoError(t, bus.Send(context.Background(), "sess", "agent-a", "agent-b", "hello"))

	mail, err := bus.Wait(context.Background(), "agent-b", nil, time.Second, nil)
	require.NoError(t, err)
	require.Len(t, mail, 1)
	assert.Equal(t, "hello", mail[0].Body)

	unread, err := store.UnreadMail(context.Background(), "agent-b")
	require.NoError(t, err)
	assert.Empty(t, unread, "Wait must mark delivered mail as read")
}

func TestBusWaitFanInFiltersBySender(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := New(store)

	require.NoError(t, bus.Send(context.Background(), "sess", "agent-x", "agent-b", "from x"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		time.Sleep(250 * time.Millisecond)
		_ = bus.Send(context.Background(), "sess", "agent-y", "agent-b", "from y")
		close(done)
	}()

	mail, err := bus.Wait(ctx, "agent-b", []string{"agent-y"}, 2*time.Second, nil)
	require.NoError(t, err)
	require.Len(t, mail, 1)
	assert.Equal(t, "from y", mail[0].Body)
	<-done
}

func TestBusWaitTimesOut(t *testing.T) {
	t.Parallel()

	bus := New(newFakeStore())
	mail, err := bus.Wait(context.Background(), "agent-b", nil, 250*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, mail)
}

func TestPollUnreadFromFiltersBySenderAndMarksRead(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := New(store)

	require.NoError(t, bus.Send(context.Background(), "sess", "agent-x", "agent-b", "from x"))
	require.NoError(t, bus.Send(context.Background(), "sess", "agent-y", "agent-b", "from y"))

	mail, ok, err := bus.PollUnreadFrom(context.Background(), "agent-b", "agent-y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from y", mail.Body)

	_, ok, err = bus.PollUnreadFrom(context.Background(), "agent-b", "agent-y")
	require.NoError(t, err)
	assert.False(t, ok, "PollUnreadFrom must mark delivered mail as read")

	unread, err := store.UnreadMail(context.Background(), "agent-b")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "from x", unread[0].Body)
}

func TestPollUnreadFromNoMatch(t *testing.T) {
	t.Parallel()

	bus := New(newFakeStore())
	_, ok, err := bus.PollUnreadFrom(context.Background(), "agent-b", "agent-y")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBusWaitInterrupted(t *testing.T) {
	t.Parallel()

	bus := New(newFakeStore())
	mail, err := bus.Wait(context.Background(), "agent-b", nil, 10*time.Second, func() bool { return true })
	require.NoError(t, err)
	assert.Empty(t, mail)
}
