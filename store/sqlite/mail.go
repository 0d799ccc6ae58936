package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgreenly/ikigai-sub013/mailbus"
)

func (s *Storage) InsertMail(ctx context.Context, m mailbus.Mail) (int64, error) {
	res, err := s.ExecContext(ctx,
		`INSERT INTO mail (session_id, from_uuid, to_uuid, body, timestamp, read) VALUES (?, ?, ?, ?, ?, 0)`,
		m.SessionID, m.FromUUID, m.ToUUID, m.Body, m.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert mail: %w", err)
	}
	return res.LastInsertId()
}

func (s *Storage) UnreadMail(ctx context.Context, toUUID string) ([]mailbus.Mail, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, session_id, from_uuid, to_uuid, body, timestamp, read FROM mail WHERE to_uuid = ? AND read = 0 ORDER BY id ASC`,
		toUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread mail: %w", err)
	}
	defer rows.Close()

	var out []mailbus.Mail
	for rows.Next() {
		var m mailbus.Mail
		if err := rows.Scan(&m.ID, &m.SessionID, &m.FromUUID, &m.ToUUID, &m.Body, &m.Timestamp, &m.Read); err != nil {
			return nil, fmt.Errorf("failed to scan mail row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE mail SET read = 1 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	_, err := s.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark mail read: %w", err)
	}
	return nil
}
