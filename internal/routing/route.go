// Package routing picks the agent that handles a channel conversation.
package routing

import (
	"strings"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

// Peer identifies the remote side of a conversation.
type Peer struct {
	Kind string // "dm"
	ID   string
}

// Route is the outcome of agent route resolution.
type Route struct {
	AgentID   string
	AccountID string
	MatchedBy string // "peer", "account", "channel" or "default"
}

// ResolveAgentRoute walks cfg.Bindings and returns the most specific match
// for (channel, accountID, peer): a peer binding beats an account binding,
// which beats a channel-wide binding. Within a tier the first binding wins.
// Without a match the default agent is used.
func ResolveAgentRoute(cfg *config.Config, channel, accountID string, peer Peer) Route {
	route := Route{
		AgentID:   cfg.ResolveDefaultAgentID(),
		AccountID: accountID,
		MatchedBy: "default",
	}

	var byAccount, byChannel *config.AgentBinding
	for i := range cfg.Bindings {
		b := &cfg.Bindings[i]
		m := b.Match
		if !strings.EqualFold(strings.TrimSpace(m.Channel), channel) {
			continue
		}
		if m.AccountID != "" && m.AccountID != "*" && m.AccountID != accountID {
			continue
		}

		if m.Peer != nil {
			if m.Peer.Kind == peer.Kind && m.Peer.ID == peer.ID {
				route.AgentID = config.NormalizeAgentID(b.AgentID)
				route.MatchedBy = "peer"
				return route
			}
			continue
		}

		if m.AccountID != "" && m.AccountID != "*" {
			if byAccount == nil {
				byAccount = b
			}
		} else if byChannel == nil {
			byChannel = b
		}
	}

	switch {
	case byAccount != nil:
		route.AgentID = config.NormalizeAgentID(byAccount.AgentID)
		route.MatchedBy = "account"
	case byChannel != nil:
		route.AgentID = config.NormalizeAgentID(byChannel.AgentID)
		route.MatchedBy = "channel"
	}
	return route
}

// Resolver adapts ResolveAgentRoute to the collaborator interface channels use.
type Resolver struct{}

func (Resolver) ResolveAgentRoute(cfg *config.Config, channel, accountID string, peer Peer) Route {
	return ResolveAgentRoute(cfg, channel, accountID, peer)
}
