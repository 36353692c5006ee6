package http

import (
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// SessionsHandler lists recorded session metadata for an agent.
type SessionsHandler struct {
	store store.SessionStore
	token string
}

func NewSessionsHandler(s store.SessionStore, token string) *SessionsHandler {
	return &SessionsHandler{store: s, token: token}
}

func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(protocol.RouteSessionsList, requireToken(h.token, h.handleList))
}

// GET /v1/sessions?agent=<id>
func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	agentID := config.NormalizeAgentID(r.URL.Query().Get("agent"))
	list, err := h.store.List(r.Context(), h.store.ResolveStorePath(agentID))
	if err != nil {
		slog.Error("sessions.list", "agent", agentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	if list == nil {
		list = []store.SessionMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agentId":  agentID,
		"sessions": list,
	})
}
