package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// DefaultAgentID is used when no agent in agents.list is marked default.
const DefaultAgentID = "main"

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the httpbridge gateway.
// A loaded Config is treated as an immutable snapshot: reloads build a new
// value and hand it to channels instead of mutating the old one.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Sessions  SessionsConfig  `json:"sessions"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Bindings  []AgentBinding  `json:"bindings,omitempty"`
	mu        sync.RWMutex
}

// DatabaseConfig configures Postgres for managed mode.
// PostgresDSN is NEVER read from config.json (secret); only from env HTTPBRIDGE_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
}

// IsManagedMode returns true if session metadata lives in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// AgentBinding maps a channel/peer pattern to a specific agent.
type AgentBinding struct {
	AgentID string       `json:"agentId"`
	Match   BindingMatch `json:"match"`
}

// BindingMatch specifies what messages this binding applies to.
type BindingMatch struct {
	Channel   string       `json:"channel"`
	AccountID string       `json:"accountId,omitempty"`
	Peer      *BindingPeer `json:"peer,omitempty"`
}

// BindingPeer specifies a specific chat target.
type BindingPeer struct {
	Kind string `json:"kind"` // "dm"
	ID   string `json:"id"`
}

// AgentsConfig contains agent defaults and per-agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults        `json:"defaults"`
	List     map[string]AgentSpec `json:"list,omitempty"`
}

// AgentDefaults are default settings for all agents.
type AgentDefaults struct {
	Provider      string         `json:"provider"` // "echo" (default) or "openai"
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Temperature   float64        `json:"temperature"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	BlockMinChars int            `json:"block_min_chars,omitempty"` // stream block replies of at least this many chars (0 = one final reply)
	Envelope      EnvelopeConfig `json:"envelope,omitempty"`
}

// EnvelopeConfig controls how inbound text is wrapped before reaching the agent.
type EnvelopeConfig struct {
	Timezone  string `json:"timezone,omitempty"`  // IANA zone, "utc" or "local" (default)
	Timestamp *bool  `json:"timestamp,omitempty"` // include send time (default true)
	Elapsed   *bool  `json:"elapsed,omitempty"`   // include time since previous message (default true)
}

// AgentSpec is the per-agent configuration override.
// All fields optional; zero values mean "inherit from defaults".
type AgentSpec struct {
	DisplayName  string  `json:"displayName,omitempty"`
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Default      bool    `json:"default,omitempty"`
}

// ProvidersConfig maps provider name to its config.
type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
}

// GatewayConfig controls the gateway server.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"token,omitempty"`           // bearer token for admin HTTP/WS
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // WebSocket origin whitelist (empty = allow all)
	RateLimitRPM   int      `json:"rate_limit_rpm,omitempty"`  // webhook requests per minute per client IP (0 = disabled)
}

// SessionsConfig controls where session metadata is kept.
type SessionsConfig struct {
	Storage string `json:"storage"`          // directory for file/sqlite stores
	Driver  string `json:"driver,omitempty"` // "file" (default) or "sqlite"; managed mode always uses Postgres
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "httpbridge-gateway"
	Headers     map[string]string `json:"headers,omitempty"`
}

// NormalizeAgentID trims and lower-cases an agent id; empty maps to DefaultAgentID.
func NormalizeAgentID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return DefaultAgentID
	}
	return id
}
