package agent

import (
	"sync"

	"github.com/nextlevelbuilder/httpbridge/internal/providers"
)

// maxTrackedSessions bounds in-memory history; the least recently used
// session is dropped beyond it.
const maxTrackedSessions = 1000

type historyStore struct {
	mu       sync.Mutex
	sessions map[string][]providers.Message
	order    []string
}

func newHistoryStore() *historyStore {
	return &historyStore{sessions: make(map[string][]providers.Message)}
}

func (h *historyStore) get(key string) []providers.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.sessions[key]
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (h *historyStore) append(key string, msgs ...providers.Message) {
	if key == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[key]; ok {
		h.touch(key)
	} else {
		h.order = append(h.order, key)
		for len(h.order) > maxTrackedSessions {
			delete(h.sessions, h.order[0])
			h.order = h.order[1:]
		}
	}
	h.sessions[key] = append(h.sessions[key], msgs...)
}

func (h *historyStore) touch(key string) {
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.order = append(h.order, key)
}

func (l *Loop) buildMessages(sessionKey, userMessage string) []providers.Message {
	var msgs []providers.Message
	if l.systemPrompt != "" {
		msgs = append(msgs, providers.Message{Role: "system", Content: l.systemPrompt})
	}
	history := limitHistoryTurns(l.history.get(sessionKey), l.historyLimit-1)
	msgs = append(msgs, history...)
	return append(msgs, providers.Message{Role: "user", Content: userMessage})
}

// limitHistoryTurns keeps only the last N user turns (and their assistant
// replies) from history. A limit of 0 or less keeps nothing.
func limitHistoryTurns(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 {
		return nil
	}
	userCount := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			userCount++
			if userCount == limit {
				return msgs[i:]
			}
		}
	}
	return msgs
}
