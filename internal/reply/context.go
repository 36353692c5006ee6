package reply

import (
	"strings"

	"github.com/nextlevelbuilder/httpbridge/internal/sessions"
)

// InboundContext is everything the reply pipeline knows about one inbound
// message. Channels fill it and pass it through FinalizeInboundContext.
type InboundContext struct {
	Body               string // envelope-formatted text handed to the agent
	RawBody            string
	CommandBody        string
	From               string
	To                 string
	SessionKey         string
	AccountID          string
	AgentID            string
	ChatType           string // "direct"
	ConversationLabel  string
	SenderName         string
	SenderID           string
	Provider           string
	Surface            string
	OriginatingChannel string
	OriginatingTo      string
	Metadata           map[string]any
}

// FinalizeInboundContext trims fields and fills the derived ones a channel
// left empty.
func FinalizeInboundContext(in InboundContext) InboundContext {
	out := in
	out.RawBody = strings.TrimSpace(in.RawBody)
	if out.Body == "" {
		out.Body = out.RawBody
	}
	if out.CommandBody == "" {
		out.CommandBody = out.RawBody
	}
	out.SenderName = strings.TrimSpace(in.SenderName)
	out.SenderID = strings.TrimSpace(in.SenderID)
	out.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if out.Surface == "" {
		out.Surface = out.Provider
	}
	if out.OriginatingChannel == "" {
		out.OriginatingChannel = out.Provider
	}
	if out.OriginatingTo == "" {
		out.OriginatingTo = out.To
	}
	if out.ChatType == "" {
		out.ChatType = "direct"
	}
	if out.ConversationLabel == "" {
		out.ConversationLabel = out.From
	}
	if out.AgentID == "" && out.SessionKey != "" {
		if agentID, _ := sessions.ParseSessionKey(out.SessionKey); agentID != "" {
			out.AgentID = agentID
		}
	}
	return out
}
