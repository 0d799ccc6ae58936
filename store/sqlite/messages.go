package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mgreenly/ikigai-sub013/errkind"
	"github.com/mgreenly/ikigai-sub013/message"
)

// MessageKind extends message.Role with the store-only kinds "system",
// "clear", and "fork" per the database round-trip rules: system messages
// feed the request's system_prompt rather than the message array, and
// clear/fork rows mark history boundaries on restore.
type MessageKind string

const (
	MessageKindUser      MessageKind = "user"
	MessageKindAssistant MessageKind = "assistant"
	MessageKindTool      MessageKind = "tool"
	MessageKindSystem    MessageKind = "system"
	MessageKindClear     MessageKind = "clear"
	MessageKindFork      MessageKind = "fork"
)

type MessageRow struct {
	ID        int64
	SessionID string
	AgentUUID string
	Kind      MessageKind
	Content   string
	DataJSON  string
	Timestamp time.Time
}

func (s *Storage) InsertMessage(ctx context.Context, sessionID, agentUUID string, kind MessageKind, msg message.Message, dataJSON string) (int64, error) {
	content, err := json.Marshal(msg)
	if err != nil {
		return 0, errkind.Wrap(errkind.Parse, "store.InsertMessage", err)
	}
	res, err := s.ExecContext(ctx,
		`INSERT INTO messages (session_id, agent_uuid, kind, content, data_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, agentUUID, string(kind), string(content), dataJSON, time.Now())
	if err != nil {
		return 0, errkind.Wrap(errkind.DbError, "store.InsertMessage", err)
	}
	return res.LastInsertId()
}

// LoadHistory replays an agent's stored messages into the in-memory form a
// fresh Agent expects: system rows are excluded from the returned slice (the
// caller routes them to the request's system prompt instead), and only the
// suffix after the last clear/fork boundary survives.
func (s *Storage) LoadHistory(ctx context.Context, agentUUID string) ([]message.Message, string, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT kind, content FROM messages WHERE agent_uuid = ? ORDER BY id ASC`, agentUUID)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.DbError, "store.LoadHistory", err)
	}
	defer rows.Close()

	var history []message.Message
	var systemPrompt string
	for rows.Next() {
		var kind, content string
		if err := rows.Scan(&kind, &content); err != nil {
			return nil, "", errkind.Wrap(errkind.DbError, "store.LoadHistory", err)
		}
		switch MessageKind(kind) {
		case MessageKindClear, MessageKindFork:
			history = nil
		case MessageKindSystem:
			var m message.Message
			if err := json.Unmarshal([]byte(content), &m); err == nil && len(m.Content) > 0 {
				systemPrompt = m.Content[0].Text
			}
		default:
			var m message.Message
			if err := json.Unmarshal([]byte(content), &m); err != nil {
				return nil, "", errkind.Wrap(errkind.Parse, "store.LoadHistory", err)
			}
			history = append(history, m)
		}
	}
	return history, systemPrompt, rows.Err()
}
