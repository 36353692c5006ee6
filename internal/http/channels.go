package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
	"github.com/nextlevelbuilder/httpbridge/internal/channels/httpbridge"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// StatusSource reports channel status (channels.Manager).
type StatusSource interface {
	GetStatus() map[string]interface{}
}

// DirectSender performs a synchronous HTTP Bridge send (httpbridge.Channel).
type DirectSender interface {
	SendPayload(ctx context.Context, req httpbridge.OutboundRequest) (httpbridge.DeliveryResult, error)
}

// ChannelsHandler serves channel status and direct outbound sends.
type ChannelsHandler struct {
	status StatusSource
	sender DirectSender
	queue  bus.MessageRouter
	token  string
}

func NewChannelsHandler(status StatusSource, sender DirectSender, queue bus.MessageRouter, token string) *ChannelsHandler {
	return &ChannelsHandler{status: status, sender: sender, queue: queue, token: token}
}

// RegisterRoutes registers the channel routes on mux.
func (h *ChannelsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(protocol.RouteChannelsStatus, requireToken(h.token, h.handleStatus))
	mux.HandleFunc(protocol.RouteChannelsSend, requireToken(h.token, h.handleSend))
}

func (h *ChannelsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": h.status.GetStatus()})
}

// SendRequest is the body of POST /v1/channels/send.
type SendRequest struct {
	Channel    string   `json:"channel,omitempty"`
	AccountID  string   `json:"accountId,omitempty"`
	To         string   `json:"to"`
	Text       string   `json:"text"`
	MediaURLs  []string `json:"mediaUrls,omitempty"`
	SessionKey string   `json:"sessionKey,omitempty"`
	AgentID    string   `json:"agentId,omitempty"`
	Async      bool     `json:"async,omitempty"`
}

func (h *ChannelsHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	var body SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	channel := strings.TrimSpace(body.Channel)
	if channel == "" {
		channel = httpbridge.ChannelName
	}
	if channel != httpbridge.ChannelName {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported channel: " + channel})
		return
	}
	to := strings.TrimSpace(body.To)
	if to == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": httpbridge.ErrMissingTarget.Error()})
		return
	}

	if body.Async {
		msg := bus.OutboundMessage{
			Channel:  channel,
			ChatID:   to,
			Content:  body.Text,
			Metadata: map[string]string{},
		}
		for _, u := range body.MediaURLs {
			msg.Media = append(msg.Media, bus.MediaAttachment{URL: u})
		}
		setMeta(msg.Metadata, bus.MetaAccountID, body.AccountID)
		setMeta(msg.Metadata, bus.MetaSessionKey, body.SessionKey)
		setMeta(msg.Metadata, bus.MetaAgentID, body.AgentID)
		h.queue.PublishOutbound(msg)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := h.sender.SendPayload(r.Context(), httpbridge.OutboundRequest{
		AccountID:  body.AccountID,
		To:         to,
		Text:       body.Text,
		MediaURLs:  body.MediaURLs,
		SessionKey: body.SessionKey,
		AgentID:    body.AgentID,
	})
	if err != nil {
		var de *httpbridge.DeliveryError
		switch {
		case errors.Is(err, httpbridge.ErrMissingTarget), errors.Is(err, httpbridge.ErrCallbackUnavailable):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.As(err, &de):
			slog.Warn("channels.send", "to", to, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			slog.Error("channels.send", "to", to, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "send failed"})
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func setMeta(m map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}
