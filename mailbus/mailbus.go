// Package mailbus implements the persisted inter-agent mail queue the
// `wait` tool blocks on. Delivery order per recipient is insertion order,
// matching the store's autoincrement id.
package mailbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Mail is a single message from one agent to another.
type Mail struct {
	ID        int64
	SessionID string
	FromUUID  string
	ToUUID    string
	Body      string
	Timestamp time.Time
	Read      bool
}

// Store is the subset of persistence mailbus needs; store/sqlite.Storage
// satisfies it via the methods in store/sqlite/mail.go.
type Store interface {
	InsertMail(ctx context.Context, m Mail) (int64, error)
	UnreadMail(ctx context.Context, toUUID string) ([]Mail, error)
	MarkRead(ctx context.Context, ids []int64) error
}

type Bus struct {
	store        Store
	pollInterval time.Duration
}

func New(store Store) *Bus {
	return &Bus{store: store, pollInterval: 40 * time.Millisecond}
}

// Send persists a piece of mail addressed to toUUID.
func (b *Bus) Send(ctx context.Context, sessionID, fromUUID, toUUID, body string) error {
	_, err := b.store.InsertMail(ctx, Mail{
		SessionID: sessionID,
		FromUUID:  fromUUID,
		ToUUID:    toUUID,
		Body:      body,
		Timestamp: time.Now(),
	})
	return err
}

// Wait blocks until mail addressed to toUUID arrives (fan-in: if targetUUIDs
// is non-empty, only mail from one of those senders counts; otherwise any
// sender does), the timeout elapses, or interrupted reports true. It polls
// pollInterval, checking interrupted between polls so a worker thread can
// react to the same cancellation points an HTTP stream would.
func (b *Bus) Wait(ctx context.Context, toUUID string, targetUUIDs []string, timeout time.Duration, interrupted func() bool) ([]Mail, error) {
	deadline := time.Now().Add(timeout)
	var fromSet map[string]bool
	if len(targetUUIDs) > 0 {
		fromSet = make(map[string]bool, len(targetUUIDs))
		for _, uid := range targetUUIDs {
			fromSet[uid] = true
		}
	}

	for {
		unread, err := b.store.UnreadMail(ctx, toUUID)
		if err != nil {
			return nil, err
		}
		var all []Mail
		var ids []int64
		for _, m := range unread {
			if fromSet != nil && !fromSet[m.FromUUID] {
				continue
			}
			all = append(all, m)
			ids = append(ids, m.ID)
		}
		if len(all) > 0 {
			if err := b.store.MarkRead(ctx, ids); err != nil {
				return nil, err
			}
			return all, nil
		}

		if interrupted != nil && interrupted() {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

// PollUnreadFrom returns the oldest unread mail addressed to toUUID whose
// sender is fromUUID, marking it read, or ok=false if none has arrived yet.
// Unlike Wait, it never blocks; callers that need to poll multiple senders
// (the wait tool's fan-in mode) drive their own loop around this.
func (b *Bus) PollUnreadFrom(ctx context.Context, toUUID, fromUUID string) (Mail, bool, error) {
	unread, err := b.store.UnreadMail(ctx, toUUID)
	if err != nil {
		return Mail{}, false, err
	}
	for _, m := range unread {
		if m.FromUUID != fromUUID {
			continue
		}
		if err := b.store.MarkRead(ctx, []int64{m.ID}); err != nil {
			return Mail{}, false, err
		}
		return m, true, nil
	}
	return Mail{}, false, nil
}

// PollInterval returns the fixed granularity Wait and fan-in polling loops
// check the interrupt flag at.
func (b *Bus) PollInterval() time.Duration {
	return b.pollInterval
}

// NewID generates a mail-independent identifier for correlating a wait
// request across fan-in targets, e.g. in scrollback rendering.
func NewID() string {
	return uuid.NewString()
}
