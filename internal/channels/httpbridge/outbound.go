package httpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/httpbridge/internal/channels/httpbridge")

// CallbackPayload is the JSON body POSTed to a callback URL.
type CallbackPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageID      string   `json:"messageId"`
	Text           string   `json:"text"`
	MediaURLs      []string `json:"mediaUrls"`
	SessionKey     string   `json:"sessionKey"`
	AgentID        string   `json:"agentId"`
	Timestamp      int64    `json:"timestamp"` // epoch milliseconds
}

// DeliverRequest describes one reply to post.
type DeliverRequest struct {
	ConversationID string
	Account        ResolvedAccount
	Text           string
	MediaURLs      []string
	SessionKey     string // defaults to ConversationID
	AgentID        string // defaults to "main"
	MessageID      string // generated when empty
	CallbackURL    string // resolved through the directory when empty
}

// DeliveryResult reports a successful delivery.
type DeliveryResult struct {
	Channel   string `json:"channel"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Timestamp int64  `json:"timestamp"`
	To        string `json:"to"`
}

// Poster posts replies to callback URLs.
type Poster struct {
	client    *http.Client
	directory *Directory
	now       func() time.Time
}

func NewPoster(directory *Directory, client *http.Client) *Poster {
	if client == nil {
		client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Poster{client: client, directory: directory, now: time.Now}
}

// Deliver resolves the callback URL and POSTs the reply. It returns
// ErrMissingTarget, ErrCallbackUnavailable or a *DeliveryError on failure.
// There is no retry.
func (p *Poster) Deliver(ctx context.Context, req DeliverRequest) (DeliveryResult, error) {
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		return DeliveryResult{}, ErrMissingTarget
	}

	url := strings.TrimSpace(req.CallbackURL)
	if url == "" {
		resolved, ok := p.directory.Resolve(conversationID, req.Account)
		if !ok {
			return DeliveryResult{}, ErrCallbackUnavailable
		}
		url = resolved
	}

	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = conversationID
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = config.DefaultAgentID
	}
	mediaURLs := req.MediaURLs
	if mediaURLs == nil {
		mediaURLs = []string{}
	}
	now := p.now()
	messageID := req.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("httpbridge-%d", now.UnixMilli())
	}

	ctx, span := tracer.Start(ctx, "httpbridge.deliver", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("httpbridge.account_id", req.Account.AccountID),
			attribute.String("httpbridge.conversation_id", conversationID),
			attribute.String("httpbridge.message_id", messageID),
		))
	defer span.End()

	err := p.post(ctx, url, CallbackPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		Text:           req.Text,
		MediaURLs:      mediaURLs,
		SessionKey:     sessionKey,
		AgentID:        agentID,
		Timestamp:      now.UnixMilli(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DeliveryResult{}, err
	}

	return DeliveryResult{
		Channel:   ChannelName,
		MessageID: messageID,
		ChatID:    conversationID,
		Timestamp: p.now().UnixMilli(),
		To:        conversationID,
	}, nil
}

func (p *Poster) post(ctx context.Context, url string, payload CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}
