package httpbridge

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func ptr[T any](v T) *T { return &v }

func bridgeConfig(hb config.HTTPBridgeConfig) *config.Config {
	cfg := config.Default()
	cfg.Channels.HTTPBridge = hb
	return cfg
}

func TestListAccountIDs(t *testing.T) {
	if got := ListAccountIDs(bridgeConfig(config.HTTPBridgeConfig{})); !reflect.DeepEqual(got, []string{"default"}) {
		t.Errorf("no accounts: got %v", got)
	}
	cfg := bridgeConfig(config.HTTPBridgeConfig{Accounts: map[string]config.HTTPBridgeAccountConfig{
		"zeta": {}, "alpha": {},
	}})
	if got := ListAccountIDs(cfg); !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("got %v, want sorted ids", got)
	}
}

func TestResolveAccountMergesFields(t *testing.T) {
	cfg := bridgeConfig(config.HTTPBridgeConfig{
		HTTPBridgeAccountConfig: config.HTTPBridgeAccountConfig{
			Token:              ptr("base-token"),
			WebhookPath:        "/hooks/base",
			CallbackDefault:    ptr("https://base.example/cb"),
			AllowCallbackHosts: config.FlexibleStringSlice{"base.example"},
			CallbackTTLMinutes: ptr(30),
		},
		DefaultAccount: "sales",
		Accounts: map[string]config.HTTPBridgeAccountConfig{
			"sales": {Token: ptr("sales-token"), MaxCallbackEntries: ptr(5)},
			"ops":   {WebhookPath: " /hooks/ops ", AllowCallbackHosts: config.FlexibleStringSlice{}},
			"off":   {Enabled: boolPtr(false)},
		},
	})

	tests := []struct {
		name       string
		accountID  string
		wantID     string
		wantName   string
		wantToken  string
		wantPath   string
		wantHosts  []string
		wantTTL    int
		wantMax    int
		wantEnable bool
	}{
		{"default account", "", "sales", "default", "sales-token", "/hooks/base", []string{"base.example"}, 30, 5, true},
		{"path override", "ops", "ops", "ops", "base-token", "/hooks/ops", []string{}, 30, 0, true},
		{"disabled", "off", "off", "off", "base-token", "/hooks/base", []string{"base.example"}, 30, 0, false},
		{"unknown inherits base", " ghost ", "ghost", "ghost", "base-token", "/hooks/base", []string{"base.example"}, 30, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ResolveAccount(cfg, tt.accountID)
			if a.AccountID != tt.wantID || a.Name != tt.wantName {
				t.Errorf("id/name = %q/%q, want %q/%q", a.AccountID, a.Name, tt.wantID, tt.wantName)
			}
			if a.Config.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", a.Config.Token, tt.wantToken)
			}
			if a.Config.WebhookPath != tt.wantPath {
				t.Errorf("path = %q, want %q", a.Config.WebhookPath, tt.wantPath)
			}
			if !reflect.DeepEqual(a.Config.AllowCallbackHosts, tt.wantHosts) {
				t.Errorf("hosts = %#v, want %#v", a.Config.AllowCallbackHosts, tt.wantHosts)
			}
			if a.Config.CallbackTTLMinutes != tt.wantTTL || a.Config.MaxCallbackEntries != tt.wantMax {
				t.Errorf("ttl/max = %d/%d, want %d/%d", a.Config.CallbackTTLMinutes, a.Config.MaxCallbackEntries, tt.wantTTL, tt.wantMax)
			}
			if a.Enabled != tt.wantEnable || a.Config.Enabled != tt.wantEnable {
				t.Errorf("enabled = %v, want %v", a.Enabled, tt.wantEnable)
			}
			if !a.Configured {
				t.Error("expected configured (token set)")
			}
		})
	}
}

func TestResolveAccountExplicitEmptyOverrides(t *testing.T) {
	cfg := bridgeConfig(config.HTTPBridgeConfig{
		HTTPBridgeAccountConfig: config.HTTPBridgeAccountConfig{
			Token:              ptr("base-token"),
			CallbackDefault:    ptr("https://base.example/cb"),
			CallbackTTLMinutes: ptr(30),
			MaxCallbackEntries: ptr(50),
		},
		Accounts: map[string]config.HTTPBridgeAccountConfig{
			"open":    {Token: ptr("")},
			"nodef":   {CallbackDefault: ptr("")},
			"zeroed":  {CallbackTTLMinutes: ptr(0), MaxCallbackEntries: ptr(0)},
			"inherit": {},
		},
	})

	tests := []struct {
		id          string
		wantToken   string
		wantDefault string
		wantTTL     int
		wantMax     int
	}{
		{"open", "", "https://base.example/cb", 30, 50},
		{"nodef", "base-token", "", 30, 50},
		{"zeroed", "base-token", "https://base.example/cb", 0, 0},
		{"inherit", "base-token", "https://base.example/cb", 30, 50},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			a := ResolveAccount(cfg, tt.id)
			if a.Config.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", a.Config.Token, tt.wantToken)
			}
			if a.Config.CallbackDefault != tt.wantDefault {
				t.Errorf("callbackDefault = %q, want %q", a.Config.CallbackDefault, tt.wantDefault)
			}
			if a.Config.CallbackTTLMinutes != tt.wantTTL || a.Config.MaxCallbackEntries != tt.wantMax {
				t.Errorf("ttl/max = %d/%d, want %d/%d", a.Config.CallbackTTLMinutes, a.Config.MaxCallbackEntries, tt.wantTTL, tt.wantMax)
			}
		})
	}
}

func TestResolveAccountDisabledAtChannelLevel(t *testing.T) {
	cfg := bridgeConfig(config.HTTPBridgeConfig{
		HTTPBridgeAccountConfig: config.HTTPBridgeAccountConfig{Enabled: boolPtr(false)},
		Accounts:                map[string]config.HTTPBridgeAccountConfig{"a": {Enabled: boolPtr(true)}},
	})
	if a := ResolveAccount(cfg, "a"); a.Enabled {
		t.Error("channel-level enabled=false must win over the account")
	}
}

func TestResolveAccountDefaults(t *testing.T) {
	a := ResolveAccount(bridgeConfig(config.HTTPBridgeConfig{}), "")
	if a.AccountID != DefaultAccountID || a.Config.WebhookPath != DefaultWebhookPath {
		t.Errorf("got %+v", a)
	}
	if a.Configured {
		t.Error("account without token or callbackDefault must not be configured")
	}
	if a.WebhookPath() != "/httpbridge/inbound" {
		t.Errorf("WebhookPath() = %q", a.WebhookPath())
	}
}
