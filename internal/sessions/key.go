// Package sessions builds session keys and stores session files.
//
// Session keys follow the canonical format:
//
//	agent:{agentId}:{rest}
//
// Where {rest} for channel conversations is
//
//	{channel}:{accountId}:{peerKind}:{peerId}
//
// Example:
//
//	agent:main:httpbridge:default:dm:order-4711
package sessions

import (
	"fmt"
	"strings"
)

// PeerKind distinguishes conversation kinds. httpbridge only has DMs.
type PeerKind string

const (
	PeerDM PeerKind = "dm"
)

// BuildAccountPeerSessionKey builds the per-account, per-peer session key.
// Every component is trimmed and lower-cased so keys are stable across
// callers that vary in casing.
//
//	agent:{agentId}:{channel}:{accountId}:{kind}:{peerId}
func BuildAccountPeerSessionKey(agentID, channel, accountID string, kind PeerKind, peerID string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return fmt.Sprintf("agent:%s:%s:%s:%s:%s",
		norm(agentID), norm(channel), norm(accountID), norm(string(kind)), norm(peerID))
}

// ParseSessionKey extracts the agentID and rest from a canonical session key.
// Returns ("", "") if the key is not in the expected format.
func ParseSessionKey(key string) (agentID, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// ParseChannelPeer splits the rest of a channel session key into its parts.
// ok is false for keys that are not channel conversations.
func ParseChannelPeer(key string) (channel, accountID string, kind PeerKind, peerID string, ok bool) {
	_, rest := ParseSessionKey(key)
	parts := strings.SplitN(rest, ":", 4)
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	return parts[0], parts[1], PeerKind(parts[2]), parts[3], true
}
