package protocol

// Admin HTTP routes served by the gateway next to the webhook endpoints.
// Patterns use Go 1.22 ServeMux method syntax.
const (
	RouteHealth         = "GET /health"
	RouteEvents         = "GET /ws"
	RouteChannelsStatus = "GET /v1/channels/status"
	RouteChannelsSend   = "POST /v1/channels/send"
	RouteSessionsList   = "GET /v1/sessions"
)

// Plain paths for clients (cmd/send, doctor).
const (
	PathHealth         = "/health"
	PathChannelsStatus = "/v1/channels/status"
	PathChannelsSend   = "/v1/channels/send"
	PathSessions       = "/v1/sessions"
)

// Header carrying the webhook token as an alternative to Authorization: Bearer.
const HeaderToken = "X-OpenClaw-Token"
