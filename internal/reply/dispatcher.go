// Package reply turns an inbound context into agent replies and hands them
// to a channel-provided deliver callback.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/httpbridge/internal/agent"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

// Reply kinds reported to DispatchOptions.OnError.
const (
	KindBlock = protocol.ReplyKindBlock
	KindFinal = protocol.ReplyKindFinal
)

// Payload is one reply unit handed to the channel.
type Payload struct {
	Text      string
	MediaURL  string
	MediaURLs []string
	MessageID string // optional; channels generate one when empty
}

// DispatchInfo describes which reply failed.
type DispatchInfo struct {
	Kind string
}

// DispatchOptions carries the channel's delivery callbacks.
type DispatchOptions struct {
	Deliver func(ctx context.Context, p Payload) error
	OnError func(err error, info DispatchInfo)
}

// AgentResolver looks up the agent that should answer.
type AgentResolver interface {
	Resolve(cfg *config.Config, agentID string) (agent.Agent, error)
}

var tracer = otel.Tracer("github.com/nextlevelbuilder/httpbridge/internal/reply")

// Dispatcher runs the agent for an inbound context and delivers its output,
// coalescing streamed text into blocks of at least
// agents.defaults.block_min_chars characters.
type Dispatcher struct {
	agents AgentResolver
}

func NewDispatcher(agents AgentResolver) *Dispatcher {
	return &Dispatcher{agents: agents}
}

// DispatchReply blocks until the agent finished and every reply was handed
// to opts.Deliver. Delivery failures go to opts.OnError; the returned error
// covers agent resolution and execution only.
func (d *Dispatcher) DispatchReply(ctx context.Context, in InboundContext, cfg *config.Config, opts DispatchOptions) error {
	ctx, span := tracer.Start(ctx, "reply.dispatch", trace.WithAttributes(
		attribute.String("reply.channel", in.OriginatingChannel),
		attribute.String("reply.session_key", in.SessionKey),
		attribute.String("reply.agent_id", in.AgentID),
	))
	defer span.End()

	err := d.dispatch(ctx, in, cfg, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, in InboundContext, cfg *config.Config, opts DispatchOptions) error {
	ag, err := d.agents.Resolve(cfg, in.AgentID)
	if err != nil {
		return fmt.Errorf("resolve agent %q: %w", in.AgentID, err)
	}

	buf := newBlockBuffer(cfg.Agents.Defaults.BlockMinChars, func(text string) {
		deliver(ctx, opts, KindBlock, text)
	})

	result, err := ag.Run(ctx, agent.RunRequest{
		SessionKey: in.SessionKey,
		Message:    in.Body,
		RawMessage: in.RawBody,
		Channel:    in.OriginatingChannel,
		ChatID:     in.OriginatingTo,
		SenderID:   in.SenderID,
		Stream:     buf.enabled(),
	}, buf.write)
	if err != nil {
		return err
	}

	final := result.Content
	if buf.streamed() {
		final = buf.remainder()
	}
	if strings.TrimSpace(final) == "" || agent.IsSilentReply(final) {
		slog.Debug("reply: nothing to deliver", "session", in.SessionKey)
		return nil
	}
	deliver(ctx, opts, KindFinal, final)
	return nil
}

func deliver(ctx context.Context, opts DispatchOptions, kind, text string) {
	if opts.Deliver == nil {
		return
	}
	if err := opts.Deliver(ctx, Payload{Text: text}); err != nil {
		if opts.OnError != nil {
			opts.OnError(err, DispatchInfo{Kind: kind})
			return
		}
		slog.Warn("reply: deliver failed", "kind", kind, "error", err)
	}
}

// blockBuffer accumulates streamed chunks and flushes them at line breaks
// once at least minChars are buffered. minChars <= 0 disables streaming.
type blockBuffer struct {
	mu       sync.Mutex
	minChars int
	flush    func(string)
	buf      strings.Builder
	flushed  bool
}

func newBlockBuffer(minChars int, flush func(string)) *blockBuffer {
	return &blockBuffer{minChars: minChars, flush: flush}
}

func (b *blockBuffer) enabled() bool { return b.minChars > 0 }

func (b *blockBuffer) write(chunk string) {
	if !b.enabled() {
		return
	}
	b.mu.Lock()
	b.buf.WriteString(chunk)
	var out string
	if text := b.buf.String(); len(text) >= b.minChars {
		if cut := strings.LastIndex(text, "\n"); cut >= b.minChars-1 {
			out = strings.TrimSpace(text[:cut])
			b.buf.Reset()
			b.buf.WriteString(text[cut+1:])
		}
	}
	if out != "" {
		b.flushed = true
	}
	b.mu.Unlock()

	if out != "" {
		b.flush(out)
	}
}

// streamed reports whether any block was already delivered.
func (b *blockBuffer) streamed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

func (b *blockBuffer) remainder() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	return text
}
