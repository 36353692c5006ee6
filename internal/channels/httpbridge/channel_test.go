package httpbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

type recordingBus struct {
	mu     sync.Mutex
	events []bus.Event
}

func (b *recordingBus) Subscribe(string, bus.EventHandler) {}
func (b *recordingBus) Unsubscribe(string)                 {}
func (b *recordingBus) Broadcast(e bus.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Name
	}
	return out
}

func twoAccountConfig(callbackDefault string) *config.Config {
	return bridgeConfig(config.HTTPBridgeConfig{
		HTTPBridgeAccountConfig: config.HTTPBridgeAccountConfig{CallbackDefault: ptr(callbackDefault)},
		Accounts: map[string]config.HTTPBridgeAccountConfig{
			"a":   {WebhookPath: "/a"},
			"b":   {WebhookPath: "/b"},
			"off": {WebhookPath: "/off", Enabled: boolPtr(false)},
		},
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannelStartStop(t *testing.T) {
	events := &recordingBus{}
	c := New(twoAccountConfig("https://cb.example"), Runtime{}, events)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsRunning() {
		t.Error("channel not running")
	}
	if got := c.Registry().Paths(); strings.Join(got, ",") != "/a,/b" {
		t.Errorf("paths = %v", got)
	}

	st, ok := c.AccountStatus("off")
	if !ok || st.Enabled || st.Running {
		t.Errorf("disabled account status = %+v %v", st, ok)
	}
	st, _ = c.AccountStatus("a")
	if !st.Running || st.LastStartAt == nil || st.WebhookPath != "/a" {
		t.Errorf("account a status = %+v", st)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.IsRunning() || len(c.Registry().Paths()) != 0 {
		t.Error("Stop left targets registered")
	}
	st, _ = c.AccountStatus("a")
	if st.Running || st.LastStopAt == nil {
		t.Errorf("status after stop = %+v", st)
	}

	statuses, ok := c.AccountStatuses().([]AccountStatus)
	if !ok || len(statuses) != 3 || statuses[0].AccountID != "a" {
		t.Errorf("AccountStatuses = %+v", statuses)
	}
	for _, name := range events.names() {
		if name != protocol.EventChannelStatus {
			t.Errorf("unexpected event %q", name)
		}
	}
}

func TestChannelAccountStopsOnContextCancel(t *testing.T) {
	c := New(twoAccountConfig(""), Runtime{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	account := ResolveAccount(c.Config(), "a")

	stop := c.StartAccount(ctx, c.Config(), account)
	if len(c.Registry().Lookup("/a")) != 1 {
		t.Fatal("target not registered")
	}
	cancel()
	waitFor(t, func() bool { return len(c.Registry().Lookup("/a")) == 0 })
	stop()
}

func TestChannelReload(t *testing.T) {
	c := New(twoAccountConfig(""), Runtime{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	next := bridgeConfig(config.HTTPBridgeConfig{
		HTTPBridgeAccountConfig: config.HTTPBridgeAccountConfig{WebhookPath: "/moved"},
	})
	if err := c.Reload(context.Background(), next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := c.Registry().Paths(); strings.Join(got, ",") != "/moved" {
		t.Errorf("paths after reload = %v", got)
	}
	if c.Config() != next {
		t.Error("config snapshot not swapped")
	}
}

func TestChannelServesWebhook(t *testing.T) {
	srv, sink := newCallbackServer(t, http.StatusOK)
	replies := &echoReplies{}
	c := New(twoAccountConfig(srv.URL), Runtime{Replies: replies}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/b", strings.NewReader(`{"conversationId":"c1","text":"hi"}`))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	c.Handler().Tasks().Wait()

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d %q", rec.Code, rec.Body.String())
	}
	if got := sink.received(); len(got) != 1 || got[0].Text != "echo: hi" {
		t.Errorf("callbacks = %+v", got)
	}
	st, _ := c.AccountStatus("b")
	if st.LastInboundAt == nil || st.LastOutboundAt == nil || st.LastError != nil {
		t.Errorf("status = %+v", st)
	}
}

type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return http.DefaultTransport.RoundTrip(r)
}

func TestChannelOptions(t *testing.T) {
	srv, sink := newCallbackServer(t, http.StatusOK)
	registry := NewRegistry()
	directory := NewDirectory()
	transport := &countingTransport{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := New(twoAccountConfig(""), Runtime{Replies: &echoReplies{}}, nil,
		WithRegistry(registry),
		WithDirectory(directory),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithNotFound(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})),
		WithChannelClock(func() time.Time { return fixed }),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	if c.Registry() != registry || c.Directory() != directory {
		t.Fatal("shared registry or directory not used")
	}
	if len(registry.Lookup("/a")) != 1 {
		t.Error("account a not registered in the shared registry")
	}

	body := `{"conversationId":"c1","text":"hi","callbackUrl":"` + srv.URL + `/cb"}`
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/a", strings.NewReader(body)))
	c.Handler().Tasks().Wait()
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d %q", rec.Code, rec.Body.String())
	}
	if cb, ok := directory.Entry("c1"); !ok || cb.URL != srv.URL+"/cb" {
		t.Errorf("shared directory entry = %+v %v", cb, ok)
	}
	if got := sink.received(); len(got) != 1 {
		t.Errorf("callbacks = %d, want 1", len(got))
	}
	transport.mu.Lock()
	calls := transport.calls
	transport.mu.Unlock()
	if calls != 1 {
		t.Errorf("custom client calls = %d, want 1", calls)
	}
	if st, _ := c.AccountStatus("a"); st.LastInboundAt == nil || !st.LastInboundAt.Equal(fixed) {
		t.Errorf("lastInboundAt = %v, want %v", st.LastInboundAt, fixed)
	}

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nowhere", strings.NewReader("{}")))
	if rec.Code != http.StatusTeapot {
		t.Errorf("unmatched path status = %d, want 418", rec.Code)
	}
}

func TestChannelSend(t *testing.T) {
	srv, sink := newCallbackServer(t, http.StatusOK)
	events := &recordingBus{}
	c := New(twoAccountConfig(""), Runtime{}, events)
	c.Directory().Remember("c7", srv.URL, ResolveAccount(c.Config(), "a"))

	err := c.Send(context.Background(), bus.OutboundMessage{
		Channel: ChannelName,
		ChatID:  "c7",
		Content: "direct",
		Media:   []bus.MediaAttachment{{URL: "https://img.example/1.png"}},
		Metadata: map[string]string{
			bus.MetaAccountID:  "a",
			bus.MetaSessionKey: "agent:ops:httpbridge:a:dm:c7",
			bus.MetaAgentID:    "ops",
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := sink.received()
	if len(got) != 1 {
		t.Fatalf("callbacks = %d", len(got))
	}
	if got[0].AgentID != "ops" || got[0].SessionKey != "agent:ops:httpbridge:a:dm:c7" || got[0].MediaURLs[0] != "https://img.example/1.png" {
		t.Errorf("payload = %+v", got[0])
	}

	err = c.Send(context.Background(), bus.OutboundMessage{Channel: ChannelName, ChatID: "unknown", Content: "x"})
	if err == nil || !strings.Contains(err.Error(), ErrCallbackUnavailable.Error()) {
		t.Errorf("err = %v", err)
	}
	names := events.names()
	if len(names) != 2 || names[0] != protocol.EventDeliverySucceeded || names[1] != protocol.EventDeliveryFailed {
		t.Errorf("events = %v", names)
	}
}

func TestSendPayloadMissingTarget(t *testing.T) {
	c := New(twoAccountConfig(""), Runtime{}, nil)
	if _, err := c.SendPayload(context.Background(), OutboundRequest{Text: "x"}); err != ErrMissingTarget {
		t.Errorf("err = %v, want ErrMissingTarget", err)
	}
}
