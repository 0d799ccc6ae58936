package sqlite

import (
	"context"
	"time"

	"github.com/mgreenly/ikigai-sub013/errkind"
)

func (s *Storage) InsertSession(ctx context.Context, id, name string) error {
	_, err := s.ExecContext(ctx, `INSERT INTO sessions (id, name, created_at) VALUES (?, ?, ?)`, id, name, time.Now())
	if err != nil {
		return errkind.Wrap(errkind.DbError, "store.InsertSession", err)
	}
	return nil
}

type MarkRow struct {
	ID           int64
	SessionID    string
	AgentUUID    string
	Label        string
	MessageIndex int
	CreatedAt    time.Time
}

func (s *Storage) InsertMark(ctx context.Context, m MarkRow) (int64, error) {
	res, err := s.ExecContext(ctx,
		`INSERT INTO marks (session_id, agent_uuid, label, message_index, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.AgentUUID, m.Label, m.MessageIndex, time.Now())
	if err != nil {
		return 0, errkind.Wrap(errkind.DbError, "store.InsertMark", err)
	}
	return res.LastInsertId()
}

func (s *Storage) DeleteMarksAfter(ctx context.Context, agentUUID string, messageIndex int) error {
	_, err := s.ExecContext(ctx, `DELETE FROM marks WHERE agent_uuid = ? AND message_index > ?`, agentUUID, messageIndex)
	if err != nil {
		return errkind.Wrap(errkind.DbError, "store.DeleteMarksAfter", err)
	}
	return nil
}
