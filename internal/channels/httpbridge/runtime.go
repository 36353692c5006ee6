package httpbridge

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/reply"
	"github.com/nextlevelbuilder/httpbridge/internal/routing"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
	"github.com/nextlevelbuilder/httpbridge/internal/tasks"
)

// RouteResolver picks the agent for a conversation.
type RouteResolver interface {
	ResolveAgentRoute(cfg *config.Config, channel, accountID string, peer routing.Peer) routing.Route
}

// SessionRecorder is the session bookkeeping the handler needs.
// store.SessionStore satisfies it.
type SessionRecorder interface {
	ResolveStorePath(agentID string) string
	ReadUpdatedAt(ctx context.Context, storePath, key string) (time.Time, bool)
	RecordInbound(ctx context.Context, storePath string, meta store.SessionMeta) error
}

// ReplyDispatcher runs the reply pipeline for one inbound message.
type ReplyDispatcher interface {
	DispatchReply(ctx context.Context, in reply.InboundContext, cfg *config.Config, opts reply.DispatchOptions) error
}

// Runtime bundles the collaborators the channel delegates to. Nil Routes
// fall back to the default agent; nil Sessions skip bookkeeping; nil
// Replies accept messages without answering them.
type Runtime struct {
	Routes   RouteResolver
	Sessions SessionRecorder
	Replies  ReplyDispatcher
	Tasks    *tasks.Group
}

func (rt *Runtime) route(cfg *config.Config, accountID, conversationID string) routing.Route {
	peer := routing.Peer{Kind: "dm", ID: conversationID}
	if rt.Routes != nil {
		return rt.Routes.ResolveAgentRoute(cfg, ChannelName, accountID, peer)
	}
	return routing.ResolveAgentRoute(cfg, ChannelName, accountID, peer)
}
