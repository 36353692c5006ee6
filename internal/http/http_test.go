package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
	"github.com/nextlevelbuilder/httpbridge/internal/channels/httpbridge"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
)

type fakeStatus map[string]interface{}

func (f fakeStatus) GetStatus() map[string]interface{} { return f }

type fakeSender struct {
	got []httpbridge.OutboundRequest
	err error
}

func (f *fakeSender) SendPayload(_ context.Context, req httpbridge.OutboundRequest) (httpbridge.DeliveryResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return httpbridge.DeliveryResult{}, f.err
	}
	return httpbridge.DeliveryResult{Channel: "httpbridge", MessageID: "m1", ChatID: req.To, To: req.To}, nil
}

type fakeQueue struct{ msgs []bus.OutboundMessage }

func (q *fakeQueue) PublishOutbound(msg bus.OutboundMessage) { q.msgs = append(q.msgs, msg) }
func (q *fakeQueue) SubscribeOutbound(context.Context) (bus.OutboundMessage, bool) {
	return bus.OutboundMessage{}, false
}

func newMux(sender *fakeSender, queue *fakeQueue) *http.ServeMux {
	mux := http.NewServeMux()
	NewChannelsHandler(fakeStatus{"httpbridge": map[string]interface{}{"running": true}}, sender, queue, "admin").RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestChannelsStatusRequiresToken(t *testing.T) {
	mux := newMux(&fakeSender{}, &fakeQueue{})

	if rec := serve(mux, http.MethodGet, "/v1/channels/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", rec.Code)
	}
	if rec := serve(mux, http.MethodGet, "/v1/channels/status", "", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: %d", rec.Code)
	}
	rec := serve(mux, http.MethodGet, "/v1/channels/status", "", "admin")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestChannelsSend(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		sendErr  error
		wantCode int
		wantSent int
		wantMsg  string
	}{
		{"ok", `{"to":"c1","text":"hi","accountId":"a"}`, nil, 200, 1, `"messageId":"m1"`},
		{"bad json", `{`, nil, 400, 0, "invalid JSON"},
		{"missing target", `{"text":"hi"}`, nil, 400, 0, "requires target"},
		{"other channel", `{"channel":"slack","to":"c1"}`, nil, 400, 0, "unsupported channel"},
		{"no callback", `{"to":"c1"}`, fmt.Errorf("wrapped: %w", httpbridge.ErrCallbackUnavailable), 400, 1, "callbackUrl is required"},
		{"callback 500", `{"to":"c1"}`, &httpbridge.DeliveryError{StatusCode: 500}, 502, 1, "callback failed (500)"},
		{"unexpected", `{"to":"c1"}`, context.DeadlineExceeded, 500, 1, "send failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{err: tt.sendErr}
			rec := serve(newMux(sender, &fakeQueue{}), http.MethodPost, "/v1/channels/send", tt.body, "admin")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if len(sender.got) != tt.wantSent {
				t.Errorf("sends = %d, want %d", len(sender.got), tt.wantSent)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body %s does not contain %q", rec.Body.String(), tt.wantMsg)
			}
		})
	}
}

func TestChannelsSendAsync(t *testing.T) {
	sender := &fakeSender{}
	queue := &fakeQueue{}
	body := `{"to":" c1 ","text":"hi","mediaUrls":["https://img.example/a.png"],"agentId":"ops","async":true}`
	rec := serve(newMux(sender, queue), http.MethodPost, "/v1/channels/send", body, "admin")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(sender.got) != 0 || len(queue.msgs) != 1 {
		t.Fatalf("sender=%d queue=%d", len(sender.got), len(queue.msgs))
	}
	msg := queue.msgs[0]
	if msg.ChatID != "c1" || msg.Channel != "httpbridge" || msg.Metadata[bus.MetaAgentID] != "ops" {
		t.Errorf("msg = %+v", msg)
	}
	if _, ok := msg.Metadata[bus.MetaAccountID]; ok {
		t.Error("empty account id should not be set")
	}
	if urls := msg.MediaURLs(); len(urls) != 1 {
		t.Errorf("media = %v", urls)
	}
}

type fakeSessionStore struct{ rows []store.SessionMeta }

func (f *fakeSessionStore) ResolveStorePath(agentID string) string { return "agent/" + agentID }
func (f *fakeSessionStore) ReadUpdatedAt(context.Context, string, string) (time.Time, bool) {
	return time.Time{}, false
}
func (f *fakeSessionStore) RecordInbound(context.Context, string, store.SessionMeta) error { return nil }
func (f *fakeSessionStore) List(_ context.Context, storePath string) ([]store.SessionMeta, error) {
	if storePath != "agent/main" {
		return nil, nil
	}
	return f.rows, nil
}
func (f *fakeSessionStore) Close() error { return nil }

func TestSessionsList(t *testing.T) {
	mux := http.NewServeMux()
	NewSessionsHandler(&fakeSessionStore{rows: []store.SessionMeta{{Key: "agent:main:httpbridge:default:dm:c1"}}}, "").RegisterRoutes(mux)

	rec := serve(mux, http.MethodGet, "/v1/sessions", "", "")
	var got struct {
		AgentID  string              `json:"agentId"`
		Sessions []store.SessionMeta `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AgentID != "main" || len(got.Sessions) != 1 {
		t.Errorf("got %+v", got)
	}

	rec = serve(mux, http.MethodGet, "/v1/sessions?agent=Other", "", "")
	if !strings.Contains(rec.Body.String(), `"sessions":[]`) {
		t.Errorf("empty list body = %s", rec.Body.String())
	}
}
