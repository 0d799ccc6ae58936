package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mgreenly/ikigai-sub013/errkind"
)

var ErrNotFound = errors.New("not found")

type AgentRow struct {
	UUID          string
	SessionID     string
	ParentUUID    sql.NullString
	Name          sql.NullString
	Status        string
	Provider      string
	Model         string
	ThinkingLevel string
	ForkMessageID sql.NullInt64
	CreatedAt     time.Time
	EndedAt       sql.NullTime
}

func (s *Storage) InsertAgent(ctx context.Context, a AgentRow) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO agents (uuid, session_id, parent_uuid, name, status, provider, model, thinking_level, fork_message_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UUID, a.SessionID, a.ParentUUID, a.Name, a.Status, a.Provider, a.Model, a.ThinkingLevel, a.ForkMessageID, a.CreatedAt)
	if err != nil {
		return errkind.Wrap(errkind.DbError, "store.InsertAgent", err)
	}
	return nil
}

func (s *Storage) MarkAgentDead(ctx context.Context, uuid string) error {
	_, err := s.ExecContext(ctx, `UPDATE agents SET status = 'dead', ended_at = ? WHERE uuid = ?`, time.Now(), uuid)
	if err != nil {
		return errkind.Wrap(errkind.DbError, "store.MarkAgentDead", err)
	}
	return nil
}

func (s *Storage) GetAgent(ctx context.Context, uuid string) (AgentRow, error) {
	row := s.QueryRowContext(ctx,
		`SELECT uuid, session_id, parent_uuid, name, status, provider, model, thinking_level, fork_message_id, created_at, ended_at
		 FROM agents WHERE uuid = ?`, uuid)
	var a AgentRow
	err := row.Scan(&a.UUID, &a.SessionID, &a.ParentUUID, &a.Name, &a.Status, &a.Provider, &a.Model, &a.ThinkingLevel, &a.ForkMessageID, &a.CreatedAt, &a.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentRow{}, fmt.Errorf("%w: agent %s", ErrNotFound, uuid)
	}
	if err != nil {
		return AgentRow{}, errkind.Wrap(errkind.DbError, "store.GetAgent", err)
	}
	return a, nil
}

func (s *Storage) ListAgents(ctx context.Context, sessionID string) ([]AgentRow, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT uuid, session_id, parent_uuid, name, status, provider, model, thinking_level, fork_message_id, created_at, ended_at
		 FROM agents WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, errkind.Wrap(errkind.DbError, "store.ListAgents", err)
	}
	defer rows.Close()

	var out []AgentRow
	for rows.Next() {
		var a AgentRow
		if err := rows.Scan(&a.UUID, &a.SessionID, &a.ParentUUID, &a.Name, &a.Status, &a.Provider, &a.Model, &a.ThinkingLevel, &a.ForkMessageID, &a.CreatedAt, &a.EndedAt); err != nil {
			return nil, errkind.Wrap(errkind.DbError, "store.ListAgents", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
