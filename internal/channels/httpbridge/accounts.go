// Package httpbridge implements the HTTP Bridge channel: callers POST a
// message to a webhook path and receive the agent's reply as a JSON POST to
// a callback URL they supplied (or the account's default).
package httpbridge

import (
	"sort"
	"strings"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

const (
	ChannelName        = "httpbridge"
	ChannelLabel       = "HTTP Bridge"
	DefaultAccountID   = "default"
	DefaultWebhookPath = "/httpbridge/inbound"
)

// AccountSettings is the effective per-account configuration after merging
// channels.httpbridge with channels.httpbridge.accounts[<id>].
type AccountSettings struct {
	Enabled            bool     `json:"enabled"`
	WebhookPath        string   `json:"webhookPath"`
	Token              string   `json:"-"`
	CallbackDefault    string   `json:"callbackDefault,omitempty"`
	AllowCallbackHosts []string `json:"allowCallbackHosts,omitempty"`
	CallbackTTLMinutes int      `json:"callbackTtlMinutes,omitempty"`
	MaxCallbackEntries int      `json:"maxCallbackEntries,omitempty"`
}

// ResolvedAccount is an account ready to be started.
type ResolvedAccount struct {
	AccountID  string          `json:"accountId"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Configured bool            `json:"configured"`
	Config     AccountSettings `json:"config"`
}

// WebhookPath returns the normalized path this account listens on.
func (a ResolvedAccount) WebhookPath() string {
	p := a.Config.WebhookPath
	if strings.TrimSpace(p) == "" {
		p = DefaultWebhookPath
	}
	return NormalizeWebhookPath(p)
}

// ListAccountIDs returns the configured account ids in sorted order, or the
// implicit default account when none are named.
func ListAccountIDs(cfg *config.Config) []string {
	accounts := cfg.Channels.HTTPBridge.Accounts
	if len(accounts) == 0 {
		return []string{DefaultAccountID}
	}
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveDefaultAccountID returns channels.httpbridge.defaultAccount or "default".
func ResolveDefaultAccountID(cfg *config.Config) string {
	if preferred := strings.TrimSpace(cfg.Channels.HTTPBridge.DefaultAccount); preferred != "" {
		return preferred
	}
	return DefaultAccountID
}

// ResolveAccount merges the channel-level config with the named account,
// field by field, any field the account sets winning. An empty accountID selects the
// default account. Resolution is not cached.
func ResolveAccount(cfg *config.Config, accountID string) ResolvedAccount {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		accountID = ResolveDefaultAccountID(cfg)
	}
	base := cfg.Channels.HTTPBridge
	acct := base.Accounts[accountID]

	enabled := isTrue(base.Enabled) && isTrue(acct.Enabled)

	webhookPath := strings.TrimSpace(acct.WebhookPath)
	if webhookPath == "" {
		webhookPath = strings.TrimSpace(base.WebhookPath)
	}
	if webhookPath == "" {
		webhookPath = DefaultWebhookPath
	}

	settings := AccountSettings{
		Enabled:            enabled,
		WebhookPath:        webhookPath,
		Token:              firstSet(acct.Token, base.Token),
		CallbackDefault:    firstSet(acct.CallbackDefault, base.CallbackDefault),
		AllowCallbackHosts: base.AllowCallbackHosts,
		CallbackTTLMinutes: firstSet(acct.CallbackTTLMinutes, base.CallbackTTLMinutes),
		MaxCallbackEntries: firstSet(acct.MaxCallbackEntries, base.MaxCallbackEntries),
	}
	if acct.AllowCallbackHosts != nil {
		settings.AllowCallbackHosts = acct.AllowCallbackHosts
	}

	name := accountID
	if base.DefaultAccount == accountID {
		name = "default"
	}

	return ResolvedAccount{
		AccountID:  accountID,
		Name:       name,
		Enabled:    enabled,
		Configured: settings.Token != "" || settings.CallbackDefault != "",
		Config:     settings,
	}
}

// isTrue treats an unset flag as enabled.
func isTrue(b *bool) bool { return b == nil || *b }

// firstSet returns the first non-nil value, or the zero value.
func firstSet[T any](values ...*T) T {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	var zero T
	return zero
}
