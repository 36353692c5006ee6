package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
)

// Manager owns the registered channels: it starts and stops them together
// and drains the bus outbound queue into Channel.Send.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      bus.MessageRouter

	stopDispatch context.CancelFunc
	dispatchDone chan struct{}
}

func NewManager(router bus.MessageRouter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      router,
	}
}

// RegisterChannel adds (or replaces) a channel under name.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// snapshot returns the registered channels sorted by name.
func (m *Manager) snapshot() ([]string, map[string]Channel) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	chans := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		names = append(names, name)
		chans[name] = ch
	}
	sort.Strings(names)
	return names, chans
}

// StartAll starts every channel and the outbound dispatch loop. A channel
// that fails to start is logged and reported in the joined error; the
// others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	dispatchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.stopDispatch, m.dispatchDone = cancel, done
	m.mu.Unlock()
	go m.dispatchOutbound(dispatchCtx, done)

	names, chans := m.snapshot()
	if len(names) == 0 {
		slog.Warn("channels: none registered")
		return nil
	}

	var errs []error
	for _, name := range names {
		if err := chans[name].Start(ctx); err != nil {
			slog.Error("channels: start failed", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		slog.Info("channels: started", "channel", name)
	}
	return errors.Join(errs...)
}

// StopAll stops the dispatch loop first, so no Send races a stopping
// channel, then every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.stopDispatch, m.dispatchDone
	m.stopDispatch, m.dispatchDone = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	names, chans := m.snapshot()
	var errs []error
	for _, name := range names {
		if err := chans[name].Stop(ctx); err != nil {
			slog.Error("channels: stop failed", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	slog.Info("channels: all stopped")
	return errors.Join(errs...)
}

func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if IsInternalChannel(msg.Channel) {
			continue
		}
		if err := m.SendToChannel(ctx, msg); err != nil {
			slog.Error("channels: outbound send failed",
				"channel", msg.Channel,
				"to", msg.ChatID,
				"error", err,
			)
		}
	}
}

// SendToChannel delivers msg synchronously through the channel it names.
func (m *Manager) SendToChannel(ctx context.Context, msg bus.OutboundMessage) error {
	m.mu.RLock()
	channel, ok := m.channels[msg.Channel]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %q not registered", msg.Channel)
	}
	return channel.Send(ctx, msg)
}

// GetStatus reports each channel's running state, plus per-account detail
// for channels that implement StatusReporter.
func (m *Manager) GetStatus() map[string]interface{} {
	names, chans := m.snapshot()
	status := make(map[string]interface{}, len(names))
	for _, name := range names {
		entry := map[string]interface{}{"running": chans[name].IsRunning()}
		if r, ok := chans[name].(StatusReporter); ok {
			entry["accounts"] = r.AccountStatuses()
		}
		status[name] = entry
	}
	return status
}
