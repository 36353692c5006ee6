package protocol

// ProtocolVersion is reported by /health and in every WebSocket frame.
const ProtocolVersion = 1

// WebSocket event names pushed from server to client.
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// Channel account lifecycle and activity (payload: channel status snapshot).
	EventChannelStatus = "channel.status"

	// Inbound webhook accepted (payload: channel, account_id, conversation_id).
	EventInboundAccepted = "inbound.accepted"

	// Callback delivery outcome (payload: channel, account_id, conversation_id, message_id, error).
	EventDeliverySucceeded = "delivery.succeeded"
	EventDeliveryFailed    = "delivery.failed"

	// Config file reloaded from disk.
	EventConfigReloaded = "config.reloaded"
)

// Reply dispatch kinds (in payload.kind of delivery events).
const (
	ReplyKindBlock = "block"
	ReplyKindFinal = "final"
)

// EventFrame is the JSON envelope written to WebSocket clients.
type EventFrame struct {
	Type     string      `json:"type"` // always "event"
	Event    string      `json:"event"`
	Payload  interface{} `json:"payload,omitempty"`
	Protocol int         `json:"protocol"`
}

// NewEventFrame wraps an event for the wire.
func NewEventFrame(name string, payload interface{}) EventFrame {
	return EventFrame{Type: "event", Event: name, Payload: payload, Protocol: ProtocolVersion}
}
