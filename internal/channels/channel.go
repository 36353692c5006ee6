// Package channels provides the channel abstraction layer. A channel connects
// an external transport (here: HTTP webhooks with callback delivery) to the
// agent runtime and owns its accounts' lifecycle.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/httpbridge/internal/bus"
)

// InternalChannels are system channels excluded from outbound dispatch.
var InternalChannels = map[string]bool{
	"cli":    true,
	"system": true,
}

// IsInternalChannel checks if a channel name is internal.
func IsInternalChannel(name string) bool {
	return InternalChannels[name]
}

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "httpbridge").
	Name() string

	// Start begins accepting messages. Must be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool
}

// StatusReporter is implemented by channels that expose per-account status.
type StatusReporter interface {
	AccountStatuses() interface{}
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	events  bus.EventPublisher
	running atomic.Bool
}

// NewBaseChannel creates a new BaseChannel.
func NewBaseChannel(name string, events bus.EventPublisher) *BaseChannel {
	return &BaseChannel{name: name, events: events}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Broadcast publishes an event if a publisher is configured.
func (c *BaseChannel) Broadcast(name string, payload interface{}) {
	if c.events != nil {
		c.events.Broadcast(bus.Event{Name: name, Payload: payload})
	}
}

// Truncate shortens s to at most maxWidth display cells, appending "..." if
// truncated. Wide runes count double so log previews stay aligned.
func Truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
