// Package agent runs inbound messages through a configured agent and
// returns its reply text.
package agent

import (
	"context"

	"github.com/nextlevelbuilder/httpbridge/internal/providers"
)

// Agent produces a reply for one inbound message.
type Agent interface {
	ID() string
	// Run processes req. When req.Stream is set and onChunk is non-nil,
	// partial text is passed to onChunk as it is produced.
	Run(ctx context.Context, req RunRequest, onChunk func(string)) (*RunResult, error)
}

// RunRequest is the input for processing a message through an agent.
type RunRequest struct {
	SessionKey string // agent:{agentId}:{channel}:{accountId}:{peerKind}:{chatId}
	Message    string // envelope-formatted user message
	RawMessage string // text as the sender wrote it
	Channel    string
	ChatID     string
	SenderID   string
	RunID      string
	Stream     bool
}

// RunResult is the output of a completed agent run.
type RunResult struct {
	Content string           `json:"content"`
	RunID   string           `json:"runId"`
	Usage   *providers.Usage `json:"usage,omitempty"`
}

// Echo replies with the sender's raw text. It is the default agent when no
// provider is configured.
type Echo struct {
	id string
}

func NewEcho(id string) *Echo { return &Echo{id: id} }

func (e *Echo) ID() string { return e.id }

func (e *Echo) Run(ctx context.Context, req RunRequest, onChunk func(string)) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := req.RawMessage
	if text == "" {
		text = req.Message
	}
	if req.Stream && onChunk != nil && text != "" {
		onChunk(text)
	}
	return &RunResult{Content: text, RunID: req.RunID}, nil
}
