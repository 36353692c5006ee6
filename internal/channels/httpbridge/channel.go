package httpbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
	"github.com/nextlevelbuilder/httpbridge/internal/channels"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// Channel is the HTTP Bridge channel. It owns the webhook registry and the
// callback directory; accounts register on Start and unregister on Stop or
// when their context is cancelled.
type Channel struct {
	*channels.BaseChannel

	mu    sync.Mutex
	cfg   *config.Config
	stops map[string]func()

	registry  *Registry
	directory *Directory
	poster    *Poster
	handler   *Handler
	status    *statusTracker
	now       func() time.Time
}

// Option configures a Channel.
type Option func(*channelOptions)

type channelOptions struct {
	registry   *Registry
	directory  *Directory
	httpClient *http.Client
	fallback   http.Handler
	now        func() time.Time
}

// WithRegistry shares an existing registry.
func WithRegistry(r *Registry) Option { return func(o *channelOptions) { o.registry = r } }

// WithDirectory shares an existing callback directory.
func WithDirectory(d *Directory) Option { return func(o *channelOptions) { o.directory = d } }

// WithHTTPClient sets the client used for callback POSTs.
func WithHTTPClient(c *http.Client) Option { return func(o *channelOptions) { o.httpClient = c } }

// WithNotFound sets the handler for requests on paths without a target.
func WithNotFound(h http.Handler) Option { return func(o *channelOptions) { o.fallback = h } }

// WithChannelClock replaces time.Now for status timestamps and the handler.
func WithChannelClock(now func() time.Time) Option { return func(o *channelOptions) { o.now = now } }

// New creates the channel. events may be nil.
func New(cfg *config.Config, rt Runtime, events bus.EventPublisher, opts ...Option) *Channel {
	o := channelOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.directory == nil {
		o.directory = NewDirectory()
	}

	c := &Channel{
		BaseChannel: channels.NewBaseChannel(ChannelName, events),
		cfg:         cfg,
		stops:       make(map[string]func()),
		registry:    o.registry,
		directory:   o.directory,
		poster:      NewPoster(o.directory, o.httpClient),
		now:         o.now,
	}
	c.poster.now = o.now
	c.status = newStatusTracker(func(st AccountStatus) {
		c.Broadcast(protocol.EventChannelStatus, st)
	})
	c.handler = NewHandler(c.registry, c.directory, c.poster, rt,
		WithFallback(o.fallback),
		WithRateLimiter(channels.NewWebhookRateLimiter(cfg.Gateway.RateLimitRPM)),
		WithEvents(c.Broadcast),
		WithHandlerClock(o.now),
	)
	return c
}

func (c *Channel) Handler() *Handler     { return c.handler }
func (c *Channel) Registry() *Registry   { return c.registry }
func (c *Channel) Directory() *Directory { return c.directory }

// Config returns the current config snapshot.
func (c *Channel) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Start starts every enabled account.
func (c *Channel) Start(ctx context.Context) error {
	cfg := c.Config()
	started := 0
	for _, id := range ListAccountIDs(cfg) {
		account := ResolveAccount(cfg, id)
		if !account.Enabled {
			slog.Info("httpbridge: account disabled, skipping", "account", id)
			c.status.update(id, func(st *AccountStatus) {
				st.Name = account.Name
				st.Enabled = false
				st.Configured = account.Configured
				st.WebhookPath = account.WebhookPath()
			})
			continue
		}
		stop := c.StartAccount(ctx, cfg, account)
		c.mu.Lock()
		if prev, ok := c.stops[id]; ok {
			prev()
		}
		c.stops[id] = stop
		c.mu.Unlock()
		started++
	}
	c.SetRunning(started > 0)
	return nil
}

// StartAccount registers the account's webhook target and returns a function
// that unregisters it. Cancelling ctx has the same effect. Dispatches already
// in flight are not cancelled.
func (c *Channel) StartAccount(ctx context.Context, cfg *config.Config, account ResolvedAccount) (stop func()) {
	path := account.WebhookPath()
	slog.Info("httpbridge: starting webhook", "account", account.AccountID, "path", path)
	if !account.Configured {
		slog.Warn("httpbridge: account has neither token nor callbackDefault", "account", account.AccountID)
	}

	c.status.update(account.AccountID, func(st *AccountStatus) {
		st.Name = account.Name
		st.Enabled = account.Enabled
		st.Configured = account.Configured
		st.Running = true
		st.LastStartAt = timePtr(c.now())
		st.WebhookPath = path
	})

	unregister := c.registry.Register(WebhookTarget{
		Account: account,
		Config:  cfg,
		Path:    path,
		StatusSink: func(p StatusPatch) {
			c.status.apply(account.AccountID, p)
		},
	})

	accountCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			unregister()
			c.status.update(account.AccountID, func(st *AccountStatus) {
				st.Running = false
				st.LastStopAt = timePtr(c.now())
			})
			slog.Info("httpbridge: webhook stopped", "account", account.AccountID, "path", path)
		})
	}
	go func() {
		<-accountCtx.Done()
		stop()
	}()
	return stop
}

// Stop unregisters every account. In-flight replies keep running.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	stops := c.stops
	c.stops = make(map[string]func())
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	c.SetRunning(false)
	return nil
}

// Reload swaps the config snapshot and restarts all accounts under it.
func (c *Channel) Reload(ctx context.Context, cfg *config.Config) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.handler.SetRateLimiter(channels.NewWebhookRateLimiter(cfg.Gateway.RateLimitRPM))
	slog.Info("httpbridge: config reloaded, restarting accounts")
	return c.Start(ctx)
}

// OutboundRequest is a direct send not tied to an inbound webhook.
type OutboundRequest struct {
	AccountID  string
	To         string // conversation id
	Text       string
	MediaURL   string
	MediaURLs  []string
	SessionKey string
	AgentID    string
}

// SendPayload delivers req to the conversation's callback URL.
func (c *Channel) SendPayload(ctx context.Context, req OutboundRequest) (DeliveryResult, error) {
	account := ResolveAccount(c.Config(), req.AccountID)
	mediaURLs := req.MediaURLs
	if len(mediaURLs) == 0 && req.MediaURL != "" {
		mediaURLs = []string{req.MediaURL}
	}
	res, err := c.poster.Deliver(ctx, DeliverRequest{
		ConversationID: req.To,
		Account:        account,
		Text:           req.Text,
		MediaURLs:      mediaURLs,
		SessionKey:     req.SessionKey,
		AgentID:        req.AgentID,
	})
	event := map[string]interface{}{
		"channel":         ChannelName,
		"account_id":      account.AccountID,
		"conversation_id": req.To,
	}
	if err != nil {
		event["error"] = err.Error()
		c.Broadcast(protocol.EventDeliveryFailed, event)
		return DeliveryResult{}, err
	}
	event["message_id"] = res.MessageID
	c.Broadcast(protocol.EventDeliverySucceeded, event)
	return res, nil
}

// Send implements channels.Channel for messages routed through the bus.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, err := c.SendPayload(ctx, OutboundRequest{
		AccountID:  msg.Metadata[bus.MetaAccountID],
		To:         msg.ChatID,
		Text:       msg.Content,
		MediaURLs:  msg.MediaURLs(),
		SessionKey: msg.Metadata[bus.MetaSessionKey],
		AgentID:    msg.Metadata[bus.MetaAgentID],
	})
	if err != nil {
		return fmt.Errorf("httpbridge send to %q: %w", msg.ChatID, err)
	}
	return nil
}

// AccountStatus returns the snapshot for one account.
func (c *Channel) AccountStatus(accountID string) (AccountStatus, bool) {
	return c.status.get(accountID)
}

// AccountStatuses implements channels.StatusReporter.
func (c *Channel) AccountStatuses() interface{} {
	return c.status.snapshot()
}

var (
	_ channels.Channel        = (*Channel)(nil)
	_ channels.StatusReporter = (*Channel)(nil)
)
