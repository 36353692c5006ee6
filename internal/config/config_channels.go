package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	HTTPBridge HTTPBridgeConfig `json:"httpbridge"`
}

// HTTPBridgeAccountConfig holds the fields an account may override.
// A nil field inherits from the channel-level config; a set one wins even
// when empty. WebhookPath inherits when blank.
type HTTPBridgeAccountConfig struct {
	Enabled            *bool               `json:"enabled,omitempty"`
	Token              *string             `json:"token,omitempty"`
	WebhookPath        string              `json:"webhookPath,omitempty"`
	CallbackDefault    *string             `json:"callbackDefault,omitempty"`
	AllowCallbackHosts FlexibleStringSlice `json:"allowCallbackHosts,omitempty"`
	CallbackTTLMinutes *int                `json:"callbackTtlMinutes,omitempty"`
	MaxCallbackEntries *int                `json:"maxCallbackEntries,omitempty"`
}

// HTTPBridgeConfig is channels.httpbridge: base account fields plus named accounts.
type HTTPBridgeConfig struct {
	HTTPBridgeAccountConfig
	DefaultAccount string                             `json:"defaultAccount,omitempty"`
	Accounts       map[string]HTTPBridgeAccountConfig `json:"accounts,omitempty"`
}
