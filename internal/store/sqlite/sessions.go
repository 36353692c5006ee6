package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/httpbridge/internal/store"
)

// SQLiteSessionStore implements store.SessionStore in a single SQLite file.
type SQLiteSessionStore struct {
	db *sql.DB
}

var _ store.SessionStore = (*SQLiteSessionStore)(nil)

// New opens (creating if needed) sessions.db inside dir.
func New(dir string) (*SQLiteSessionStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent inbound requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteSessionStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSessionStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS session_meta (
			store_path    TEXT NOT NULL,
			session_key   TEXT NOT NULL,
			agent_id      TEXT NOT NULL DEFAULT '',
			channel       TEXT NOT NULL DEFAULT '',
			account_id    TEXT NOT NULL DEFAULT '',
			chat_type     TEXT NOT NULL DEFAULT '',
			from_label    TEXT NOT NULL DEFAULT '',
			to_label      TEXT NOT NULL DEFAULT '',
			sender_id     TEXT NOT NULL DEFAULT '',
			sender_name   TEXT NOT NULL DEFAULT '',
			label         TEXT NOT NULL DEFAULT '',
			last_text     TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			PRIMARY KEY (store_path, session_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_meta_updated ON session_meta(store_path, updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSessionStore) ResolveStorePath(agentID string) string {
	id := strings.ToLower(strings.TrimSpace(agentID))
	if id == "" {
		id = "main"
	}
	return "agent/" + id
}

func (s *SQLiteSessionStore) ReadUpdatedAt(ctx context.Context, storePath, key string) (time.Time, bool) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM session_meta WHERE store_path = ? AND session_key = ?`,
		storePath, key,
	).Scan(&ms)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Debug("sqlite: read session updated_at failed", "key", key, "error", err)
		}
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (s *SQLiteSessionStore) RecordInbound(ctx context.Context, storePath string, m store.SessionMeta) error {
	now := m.Updated
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_meta (store_path, session_key, agent_id, channel, account_id, chat_type,
			from_label, to_label, sender_id, sender_name, label, last_text, message_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (store_path, session_key) DO UPDATE SET
			agent_id = excluded.agent_id,
			channel = excluded.channel,
			account_id = excluded.account_id,
			chat_type = excluded.chat_type,
			from_label = excluded.from_label,
			to_label = excluded.to_label,
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			label = excluded.label,
			last_text = excluded.last_text,
			message_count = session_meta.message_count + 1,
			updated_at = excluded.updated_at`,
		storePath, m.Key, m.AgentID, m.Channel, m.AccountID, m.ChatType,
		m.From, m.To, m.SenderID, m.SenderName, m.Label, m.LastText,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert session meta: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) List(ctx context.Context, storePath string) ([]store.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, agent_id, channel, account_id, chat_type, from_label, to_label,
			sender_id, sender_name, label, last_text, message_count, created_at, updated_at
		 FROM session_meta WHERE store_path = ? ORDER BY updated_at DESC`, storePath)
	if err != nil {
		return nil, fmt.Errorf("list session meta: %w", err)
	}
	defer rows.Close()

	var out []store.SessionMeta
	for rows.Next() {
		var m store.SessionMeta
		var created, updated int64
		if err := rows.Scan(&m.Key, &m.AgentID, &m.Channel, &m.AccountID, &m.ChatType, &m.From, &m.To,
			&m.SenderID, &m.SenderName, &m.Label, &m.LastText, &m.MessageCount, &created, &updated); err != nil {
			return nil, err
		}
		m.Created = time.UnixMilli(created)
		m.Updated = time.UnixMilli(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}
