package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/httpbridge/internal/store"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
type PGSessionStore struct {
	db *sql.DB
}

var _ store.SessionStore = (*PGSessionStore)(nil)

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

func (s *PGSessionStore) ResolveStorePath(agentID string) string {
	id := strings.ToLower(strings.TrimSpace(agentID))
	if id == "" {
		id = "main"
	}
	return "agent/" + id
}

func (s *PGSessionStore) ReadUpdatedAt(ctx context.Context, storePath, key string) (time.Time, bool) {
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM session_meta WHERE store_path = $1 AND session_key = $2`,
		storePath, key,
	).Scan(&updated)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("pg: read session updated_at failed", "key", key, "error", err)
		}
		return time.Time{}, false
	}
	return updated, true
}

func (s *PGSessionStore) RecordInbound(ctx context.Context, storePath string, m store.SessionMeta) error {
	now := m.Updated
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_meta (id, store_path, session_key, agent_id, channel, account_id, chat_type,
			from_label, to_label, sender_id, sender_name, label, last_text, message_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $14)
		 ON CONFLICT (store_path, session_key) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			channel = EXCLUDED.channel,
			account_id = EXCLUDED.account_id,
			chat_type = EXCLUDED.chat_type,
			from_label = EXCLUDED.from_label,
			to_label = EXCLUDED.to_label,
			sender_id = EXCLUDED.sender_id,
			sender_name = EXCLUDED.sender_name,
			label = EXCLUDED.label,
			last_text = EXCLUDED.last_text,
			message_count = session_meta.message_count + 1,
			updated_at = EXCLUDED.updated_at`,
		uuid.Must(uuid.NewV7()), storePath, m.Key, m.AgentID, m.Channel, m.AccountID, m.ChatType,
		m.From, m.To, m.SenderID, m.SenderName, m.Label, m.LastText, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session meta: %w", err)
	}
	return nil
}

func (s *PGSessionStore) List(ctx context.Context, storePath string) ([]store.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, agent_id, channel, account_id, chat_type, from_label, to_label,
			sender_id, sender_name, label, last_text, message_count, created_at, updated_at
		 FROM session_meta WHERE store_path = $1 ORDER BY updated_at DESC`, storePath)
	if err != nil {
		return nil, fmt.Errorf("list session meta: %w", err)
	}
	defer rows.Close()

	var out []store.SessionMeta
	for rows.Next() {
		var m store.SessionMeta
		if err := rows.Scan(&m.Key, &m.AgentID, &m.Channel, &m.AccountID, &m.ChatType, &m.From, &m.To,
			&m.SenderID, &m.SenderName, &m.Label, &m.LastText, &m.MessageCount, &m.Created, &m.Updated); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGSessionStore) Close() error {
	return s.db.Close()
}
