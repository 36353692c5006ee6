package store

import (
	"context"
	"time"
)

// SessionMeta is the bookkeeping recorded for a conversation each time an
// inbound message arrives.
type SessionMeta struct {
	Key          string    `json:"key"`
	AgentID      string    `json:"agentId"`
	Channel      string    `json:"channel"`
	AccountID    string    `json:"accountId"`
	ChatType     string    `json:"chatType,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	SenderID     string    `json:"senderId,omitempty"`
	SenderName   string    `json:"senderName,omitempty"`
	Label        string    `json:"label,omitempty"`
	LastText     string    `json:"lastText,omitempty"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// SessionStore persists session metadata. storePath partitions sessions per
// agent; its meaning is backend specific (a directory for the file store,
// an agent scope for database stores).
type SessionStore interface {
	ResolveStorePath(agentID string) string

	// ReadUpdatedAt returns when the session last saw an inbound message.
	ReadUpdatedAt(ctx context.Context, storePath, key string) (time.Time, bool)

	// RecordInbound upserts meta (keyed by meta.Key), incrementing the
	// message count and setting Updated to meta.Updated.
	RecordInbound(ctx context.Context, storePath string, meta SessionMeta) error

	List(ctx context.Context, storePath string) ([]SessionMeta, error)

	Close() error
}

// StoreConfig selects and configures the session backend.
type StoreConfig struct {
	Driver      string // "file", "sqlite" or "postgres"
	SessionsDir string // file store root / sqlite database directory
	PostgresDSN string
}
