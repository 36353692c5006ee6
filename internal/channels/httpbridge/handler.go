package httpbridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/httpbridge/internal/channels"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/reply"
	"github.com/nextlevelbuilder/httpbridge/internal/routing"
	"github.com/nextlevelbuilder/httpbridge/internal/sessions"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
	"github.com/nextlevelbuilder/httpbridge/internal/tasks"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// Handler serves inbound webhook requests for every registered target.
type Handler struct {
	registry  *Registry
	directory *Directory
	poster    *Poster
	runtime   Runtime
	fallback  http.Handler
	events    func(name string, payload interface{})
	now       func() time.Time

	mu      sync.RWMutex
	limiter *channels.WebhookRateLimiter
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFallback sets the handler used by ServeHTTP for paths without a target.
func WithFallback(fallback http.Handler) HandlerOption {
	return func(h *Handler) { h.fallback = fallback }
}

// WithRateLimiter limits requests per client IP on matched paths.
func WithRateLimiter(l *channels.WebhookRateLimiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithEvents publishes inbound and delivery events.
func WithEvents(fn func(name string, payload interface{})) HandlerOption {
	return func(h *Handler) { h.events = fn }
}

// WithHandlerClock replaces time.Now.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func NewHandler(registry *Registry, directory *Directory, poster *Poster, rt Runtime, opts ...HandlerOption) *Handler {
	if rt.Tasks == nil {
		rt.Tasks = tasks.NewGroup(nil)
	}
	h := &Handler{
		registry:  registry,
		directory: directory,
		poster:    poster,
		runtime:   rt,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetRateLimiter swaps the limiter, e.g. after a config reload. nil disables limiting.
func (h *Handler) SetRateLimiter(l *channels.WebhookRateLimiter) {
	h.mu.Lock()
	h.limiter = l
	h.mu.Unlock()
}

// Tasks returns the group running detached dispatch work.
func (h *Handler) Tasks() *tasks.Group { return h.runtime.Tasks }

// ServeHTTP handles the request or passes it to the fallback (404 by default).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.HandleRequest(w, r) {
		return
	}
	if h.fallback != nil {
		h.fallback.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// HandleRequest processes r when a target is registered on its path and
// reports whether it did. Accepted requests get 202 before the reply is
// produced; the reply is dispatched on a detached task.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) bool {
	targets := h.registry.Lookup(r.URL.Path)
	if len(targets) == 0 {
		return false
	}

	ctx, span := tracer.Start(r.Context(), "httpbridge.inbound", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("httpbridge.path", targets[0].Path),
		))
	defer span.End()

	accepted, ierr := h.process(ctx, w, r, targets)
	if ierr != nil {
		if ierr.Kind == KindMethodNotAllowed {
			w.Header().Set("Allow", http.MethodPost)
		}
		writeText(w, ierr.Status, ierr.Message)
		span.SetAttributes(
			attribute.Int("http.status_code", ierr.Status),
			attribute.String("httpbridge.reject_kind", string(ierr.Kind)),
		)
		slog.Debug("httpbridge: inbound rejected", "path", targets[0].Path, "status", ierr.Status, "reason", ierr.Message)
		return true
	}

	span.SetAttributes(
		attribute.Int("http.status_code", http.StatusAccepted),
		attribute.String("httpbridge.account_id", accepted.accountID),
		attribute.String("httpbridge.conversation_id", accepted.conversationID),
	)
	writeText(w, http.StatusAccepted, "accepted")
	return true
}

type acceptedInbound struct {
	accountID      string
	conversationID string
}

func (h *Handler) process(ctx context.Context, w http.ResponseWriter, r *http.Request, targets []*WebhookTarget) (acceptedInbound, *InboundError) {
	h.mu.RLock()
	limiter := h.limiter
	h.mu.RUnlock()
	if !limiter.Allow(clientIP(r)) {
		return acceptedInbound{}, errRateLimited()
	}

	if r.Method != http.MethodPost {
		return acceptedInbound{}, errMethodNotAllowed()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return acceptedInbound{}, errPayloadTooLarge()
		}
		return acceptedInbound{}, errInvalidPayload("invalid payload")
	}

	payload, ierr := DecodeInboundPayload(body)
	if ierr != nil {
		return acceptedInbound{}, ierr
	}

	target := pickTarget(targets, payload)
	account := target.Account

	if expected := strings.TrimSpace(account.Config.Token); expected != "" {
		provided := extractToken(r)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return acceptedInbound{}, errUnauthorized()
		}
	}

	if ierr := payload.DecodeFields(); ierr != nil {
		return acceptedInbound{}, ierr
	}
	rawText, ierr := payload.RawText()
	if ierr != nil {
		return acceptedInbound{}, ierr
	}

	if cb := strings.TrimSpace(payload.CallbackURL); cb != "" {
		if ierr := ValidateCallbackURL(cb, account); ierr != nil {
			return acceptedInbound{}, ierr
		}
		h.directory.Remember(payload.ConversationID, cb, account)
	}

	callbackURL, ok := h.directory.Resolve(payload.ConversationID, account)
	if !ok {
		return acceptedInbound{}, errCallbackUnavailable()
	}

	h.dispatch(ctx, target, payload, rawText, callbackURL)
	return acceptedInbound{accountID: account.AccountID, conversationID: payload.ConversationID}, nil
}

// dispatch builds the inbound context and hands it to the reply pipeline
// without waiting for it.
func (h *Handler) dispatch(ctx context.Context, target *WebhookTarget, payload *InboundPayload, rawText, callbackURL string) {
	cfg := target.Config
	if cfg == nil {
		cfg = config.Default()
	}
	conversationID := payload.ConversationID
	route := h.runtime.route(cfg, target.Account.AccountID, conversationID)
	sessionKey := sessions.BuildAccountPeerSessionKey(route.AgentID, ChannelName, route.AccountID, sessions.PeerDM, conversationID)
	fromLabel := payload.FromLabel()
	now := h.now()

	var storePath string
	var previous time.Time
	if h.runtime.Sessions != nil {
		storePath = h.runtime.Sessions.ResolveStorePath(route.AgentID)
		previous, _ = h.runtime.Sessions.ReadUpdatedAt(ctx, storePath, sessionKey)
	}

	from := "httpbridge:conv:" + conversationID
	if senderID := strings.TrimSpace(payload.SenderID); senderID != "" {
		from = "httpbridge:" + senderID
	}
	to := "httpbridge:" + conversationID

	inbound := reply.FinalizeInboundContext(reply.InboundContext{
		Body: reply.FormatAgentEnvelope(reply.EnvelopeParams{
			Channel:           ChannelLabel,
			From:              fromLabel,
			Timestamp:         now,
			PreviousTimestamp: previous,
			Envelope:          reply.ResolveEnvelopeFormatOptions(cfg),
			Body:              rawText,
		}),
		RawBody:            rawText,
		CommandBody:        rawText,
		From:               from,
		To:                 to,
		SessionKey:         sessionKey,
		AccountID:          route.AccountID,
		AgentID:            route.AgentID,
		ChatType:           "direct",
		ConversationLabel:  fromLabel,
		SenderName:         payload.SenderName,
		SenderID:           payload.SenderID,
		Provider:           ChannelName,
		Surface:            ChannelName,
		OriginatingChannel: ChannelName,
		OriginatingTo:      to,
		Metadata:           payload.Metadata,
	})

	group := h.runtime.Tasks
	if h.runtime.Sessions != nil {
		meta := store.SessionMeta{
			Key:        inbound.SessionKey,
			AgentID:    route.AgentID,
			Channel:    ChannelName,
			AccountID:  route.AccountID,
			ChatType:   inbound.ChatType,
			From:       inbound.From,
			To:         inbound.To,
			SenderID:   inbound.SenderID,
			SenderName: inbound.SenderName,
			Label:      fromLabel,
			LastText:   channels.Truncate(rawText, 200),
			Updated:    now,
		}
		group.Go(ctx, "httpbridge.session_meta", func(ctx context.Context) error {
			if err := h.runtime.Sessions.RecordInbound(ctx, storePath, meta); err != nil {
				return fmt.Errorf("httpbridge: failed updating session meta: %w", err)
			}
			return nil
		})
	}

	target.report(StatusPatch{LastInboundAt: now})
	h.emit(protocol.EventInboundAccepted, map[string]interface{}{
		"channel":         ChannelName,
		"account_id":      target.Account.AccountID,
		"conversation_id": conversationID,
		"session_key":     sessionKey,
	})
	slog.Info("httpbridge: inbound accepted",
		"account", target.Account.AccountID,
		"conversation", conversationID,
		"agent", route.AgentID,
		"preview", channels.Truncate(rawText, 60),
	)

	if h.runtime.Replies == nil {
		return
	}
	group.Go(ctx, "httpbridge.dispatch", func(ctx context.Context) error {
		err := h.runtime.Replies.DispatchReply(ctx, inbound, cfg, reply.DispatchOptions{
			Deliver: func(ctx context.Context, p reply.Payload) error {
				h.deliverReply(ctx, target, route, conversationID, sessionKey, callbackURL, p)
				return nil
			},
			OnError: func(err error, info reply.DispatchInfo) {
				slog.Error("httpbridge: reply failed", "kind", info.Kind, "account", target.Account.AccountID, "error", err)
			},
		})
		if err != nil {
			return fmt.Errorf("httpbridge: dispatch failed: %w", err)
		}
		return nil
	})
}

// deliverReply posts one reply. Failures are logged and recorded on the
// account status; they never reach the inbound caller.
func (h *Handler) deliverReply(ctx context.Context, target *WebhookTarget, route routing.Route, conversationID, sessionKey, callbackURL string, p reply.Payload) {
	mediaURLs := p.MediaURLs
	if len(mediaURLs) == 0 && p.MediaURL != "" {
		mediaURLs = []string{p.MediaURL}
	}
	res, err := h.poster.Deliver(ctx, DeliverRequest{
		ConversationID: conversationID,
		Account:        target.Account,
		Text:           p.Text,
		MediaURLs:      mediaURLs,
		SessionKey:     sessionKey,
		AgentID:        route.AgentID,
		MessageID:      p.MessageID,
		CallbackURL:    callbackURL,
	})
	event := map[string]interface{}{
		"channel":         ChannelName,
		"account_id":      target.Account.AccountID,
		"conversation_id": conversationID,
	}
	if err != nil {
		slog.Error("httpbridge: callback failed", "account", target.Account.AccountID, "conversation", conversationID, "error", err)
		target.report(StatusPatch{LastError: err.Error()})
		event["error"] = err.Error()
		h.emit(protocol.EventDeliveryFailed, event)
		return
	}
	target.report(StatusPatch{LastOutboundAt: h.now()})
	event["message_id"] = res.MessageID
	h.emit(protocol.EventDeliverySucceeded, event)
}

func (h *Handler) emit(name string, payload interface{}) {
	if h.events != nil {
		h.events(name, payload)
	}
}

// pickTarget prefers the target whose account matches payload.accountId and
// otherwise returns the first registered one.
func pickTarget(targets []*WebhookTarget, payload *InboundPayload) *WebhookTarget {
	if accountID := strings.TrimSpace(payload.AccountID); accountID != "" {
		for _, t := range targets {
			if t.Account.AccountID == accountID {
				return t
			}
		}
	}
	return targets[0]
}

// extractToken reads "Authorization: Bearer <token>" (scheme case-insensitive)
// or the X-OpenClaw-Token header.
func extractToken(r *http.Request) string {
	const prefix = "bearer "
	if auth := r.Header.Get("Authorization"); len(auth) >= len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return strings.TrimSpace(r.Header.Get(protocol.HeaderToken))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
