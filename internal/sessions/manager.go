package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Session is the persisted metadata for one conversation session.
// Message history is owned by the agent runtime, not kept here.
type Session struct {
	Key          string    `json:"key"` // agent:{agentId}:{channel}:{accountId}:dm:{peerId}
	AgentID      string    `json:"agentId,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	AccountID    string    `json:"accountId,omitempty"`
	ChatType     string    `json:"chatType,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	SenderID     string    `json:"senderId,omitempty"`
	SenderName   string    `json:"senderName,omitempty"`
	Label        string    `json:"label,omitempty"`
	LastText     string    `json:"lastText,omitempty"` // truncated preview of the last inbound message
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// Manager keeps session metadata in memory and persists each session as a
// JSON file under a per-agent store directory.
type Manager struct {
	mu     sync.RWMutex
	root   string
	stores map[string]map[string]*Session // storePath -> key -> session
}

// NewManager creates a Manager rooted at storage. An empty root keeps
// everything in memory.
func NewManager(storage string) *Manager {
	if storage != "" {
		os.MkdirAll(storage, 0755)
	}
	return &Manager{
		root:   storage,
		stores: make(map[string]map[string]*Session),
	}
}

// StorePath returns the directory holding agentID's sessions.
func (m *Manager) StorePath(agentID string) string {
	id := sanitizeFilename(strings.ToLower(strings.TrimSpace(agentID)))
	if id == "" {
		id = "main"
	}
	if m.root == "" {
		return id
	}
	return filepath.Join(m.root, id)
}

// Get returns a copy of the session, loading the store from disk on first use.
func (m *Manager) Get(storePath, key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.storeLocked(storePath)[key]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Upsert applies update to the session (creating it if needed), bumps
// MessageCount and Updated, and persists the result.
func (m *Manager) Upsert(storePath, key string, now time.Time, update func(*Session)) error {
	m.mu.Lock()
	store := m.storeLocked(storePath)
	s, ok := store[key]
	if !ok {
		s = &Session{Key: key, Created: now}
		store[key] = s
	}
	update(s)
	s.Key = key
	s.MessageCount++
	s.Updated = now
	snapshot := *s
	m.mu.Unlock()

	return m.save(storePath, snapshot)
}

// List returns copies of all sessions in a store.
func (m *Manager) List(storePath string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	store := m.storeLocked(storePath)
	out := make([]Session, 0, len(store))
	for _, s := range store {
		out = append(out, *s)
	}
	return out
}

// Delete removes a session entirely.
func (m *Manager) Delete(storePath, key string) error {
	m.mu.Lock()
	delete(m.storeLocked(storePath), key)
	m.mu.Unlock()

	if m.root == "" {
		return nil
	}
	path := filepath.Join(storePath, sanitizeFilename(key)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// storeLocked returns the in-memory map for storePath, loading it from disk
// on first access. Caller holds mu.
func (m *Manager) storeLocked(storePath string) map[string]*Session {
	store, ok := m.stores[storePath]
	if ok {
		return store
	}
	store = make(map[string]*Session)
	m.stores[storePath] = store
	if m.root != "" {
		loadDir(storePath, store)
	}
	return store
}

// save persists a session to disk atomically.
func (m *Manager) save(storePath string, s Session) error {
	if m.root == "" {
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	filename := sanitizeFilename(s.Key)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}

	if err := os.MkdirAll(storePath, 0755); err != nil {
		return err
	}
	sessionPath := filepath.Join(storePath, filename+".json")

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(storePath, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, sessionPath); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func loadDir(dir string, into map[string]*Session) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}

		into[s.Key] = &s
	}
}

func sanitizeFilename(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", `\`, "_")
	return r.Replace(key)
}
