package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mgreenly/ikigai-sub013/coordinator"
)

// txWrapper adapts a *sql.Tx to coordinator.Tx so the fork transaction's
// store operations are totally ordered under a single SQL transaction.
type txWrapper struct {
	tx *sql.Tx
}

func (w txWrapper) InsertAgent(ctx context.Context, a coordinator.AgentRecord) error {
	var parentUUID sql.NullString
	if a.ParentUUID != "" {
		parentUUID = sql.NullString{String: a.ParentUUID, Valid: true}
	}
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO agents (uuid, session_id, parent_uuid, status, provider, model, thinking_level, fork_message_id, created_at)
		 VALUES (?, ?, ?, 'running', ?, ?, ?, ?, ?)`,
		a.UUID, a.SessionID, parentUUID, a.Provider, a.Model, a.ThinkingLevel, a.ForkMessageID, time.Now())
	return err
}

func (w txWrapper) InsertForkMessage(ctx context.Context, sessionID, agentUUID, role, childUUID string) error {
	payload, err := json.Marshal(map[string]string{"role": role, "child_uuid": childUUID})
	if err != nil {
		return err
	}
	_, err = w.tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, agent_uuid, kind, content, data_json, timestamp) VALUES (?, ?, 'fork', '', ?, ?)`,
		sessionID, agentUUID, string(payload), time.Now())
	return err
}

// InsertAgentTx runs fn inside a single SQL transaction, rolling back on any
// step failure so a partially-applied fork never becomes visible.
func (s *Storage) InsertAgentTx(ctx context.Context, fn func(tx coordinator.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(txWrapper{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
