package file

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/sessions"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
)

// FileSessionStore wraps sessions.Manager to implement store.SessionStore.
type FileSessionStore struct {
	mgr *sessions.Manager
}

func NewFileSessionStore(mgr *sessions.Manager) *FileSessionStore {
	return &FileSessionStore{mgr: mgr}
}

// Manager returns the underlying sessions.Manager.
func (f *FileSessionStore) Manager() *sessions.Manager { return f.mgr }

func (f *FileSessionStore) ResolveStorePath(agentID string) string {
	return f.mgr.StorePath(agentID)
}

func (f *FileSessionStore) ReadUpdatedAt(_ context.Context, storePath, key string) (time.Time, bool) {
	s, ok := f.mgr.Get(storePath, key)
	if !ok {
		return time.Time{}, false
	}
	return s.Updated, true
}

func (f *FileSessionStore) RecordInbound(_ context.Context, storePath string, meta store.SessionMeta) error {
	now := meta.Updated
	if now.IsZero() {
		now = time.Now()
	}
	return f.mgr.Upsert(storePath, meta.Key, now, func(s *sessions.Session) {
		s.AgentID = meta.AgentID
		s.Channel = meta.Channel
		s.AccountID = meta.AccountID
		s.ChatType = meta.ChatType
		s.From = meta.From
		s.To = meta.To
		s.SenderID = meta.SenderID
		s.SenderName = meta.SenderName
		s.Label = meta.Label
		s.LastText = meta.LastText
	})
}

func (f *FileSessionStore) List(_ context.Context, storePath string) ([]store.SessionMeta, error) {
	list := f.mgr.List(storePath)
	out := make([]store.SessionMeta, 0, len(list))
	for _, s := range list {
		out = append(out, sessionToMeta(s))
	}
	return out, nil
}

func (f *FileSessionStore) Close() error { return nil }

func sessionToMeta(s sessions.Session) store.SessionMeta {
	return store.SessionMeta{
		Key:          s.Key,
		AgentID:      s.AgentID,
		Channel:      s.Channel,
		AccountID:    s.AccountID,
		ChatType:     s.ChatType,
		From:         s.From,
		To:           s.To,
		SenderID:     s.SenderID,
		SenderName:   s.SenderName,
		Label:        s.Label,
		LastText:     s.LastText,
		MessageCount: s.MessageCount,
		Created:      s.Created,
		Updated:      s.Updated,
	}
}
