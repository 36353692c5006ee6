package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Provider:    "echo",
				Model:       "gpt-4o-mini",
				MaxTokens:   1024,
				Temperature: 0.7,
			},
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18790,
			RateLimitRPM: 0,
		},
		Sessions: SessionsConfig{
			Storage: "~/.httpbridge/sessions",
			Driver:  "file",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStrPtr := func(key string, dst **string) {
		if v := os.Getenv(key); v != "" {
			*dst = &v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	hb := &c.Channels.HTTPBridge
	envStrPtr("HTTPBRIDGE_TOKEN", &hb.Token)
	envStrPtr("HTTPBRIDGE_CALLBACK_DEFAULT", &hb.CallbackDefault)
	envStr("HTTPBRIDGE_WEBHOOK_PATH", &hb.WebhookPath)
	if v := os.Getenv("HTTPBRIDGE_ALLOW_CALLBACK_HOSTS"); v != "" {
		hb.AllowCallbackHosts = splitList(v)
	}

	envStr("HTTPBRIDGE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("HTTPBRIDGE_OPENAI_API_BASE", &c.Providers.OpenAI.APIBase)
	envStr("HTTPBRIDGE_PROVIDER", &c.Agents.Defaults.Provider)
	envStr("HTTPBRIDGE_MODEL", &c.Agents.Defaults.Model)

	envStr("HTTPBRIDGE_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("HTTPBRIDGE_HOST", &c.Gateway.Host)
	if v := os.Getenv("HTTPBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("HTTPBRIDGE_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("HTTPBRIDGE_SESSIONS_DRIVER", &c.Sessions.Driver)

	envStr("HTTPBRIDGE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("HTTPBRIDGE_MODE", &c.Database.Mode)

	envStr("HTTPBRIDGE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("HTTPBRIDGE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("HTTPBRIDGE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("HTTPBRIDGE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("HTTPBRIDGE_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Hash returns a SHA-256 hash of the config. The watcher uses it to skip
// reloads when the file was touched but nothing changed.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// SessionsPath returns the expanded session storage directory.
func (c *Config) SessionsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Sessions.Storage)
}

// ResolveAgent returns the effective config for a given agent ID,
// merging defaults with per-agent overrides.
func (c *Config) ResolveAgent(agentID string) AgentDefaults {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Agents.Defaults
	spec, ok := c.Agents.List[agentID]
	if !ok {
		for id, candidate := range c.Agents.List {
			if strings.EqualFold(strings.TrimSpace(id), agentID) {
				spec, ok = candidate, true
				break
			}
		}
	}
	if ok {
		if spec.Provider != "" {
			d.Provider = spec.Provider
		}
		if spec.Model != "" {
			d.Model = spec.Model
		}
		if spec.MaxTokens > 0 {
			d.MaxTokens = spec.MaxTokens
		}
		if spec.Temperature > 0 {
			d.Temperature = spec.Temperature
		}
		if spec.SystemPrompt != "" {
			d.SystemPrompt = spec.SystemPrompt
		}
	}

	return d
}

// ResolveDefaultAgentID returns the ID of the agent marked as default,
// or DefaultAgentID if none is explicitly marked.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, spec := range c.Agents.List {
		if spec.Default {
			return strings.ToLower(strings.TrimSpace(id))
		}
	}
	return DefaultAgentID
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by doctor and the status endpoint to avoid printing secrets.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Providers.OpenAI.APIKey)
	maskNonEmpty(&cp.Gateway.Token)
	maskSet(cp.Channels.HTTPBridge.Token)
	for _, acc := range cp.Channels.HTTPBridge.Accounts {
		maskSet(acc.Token)
	}
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}

	return cp
}

// maskSet masks a decoded optional secret in place. The pointer belongs to
// the copy, so the original is untouched.
func maskSet(s *string) {
	if s != nil {
		maskNonEmpty(s)
	}
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return home
}
