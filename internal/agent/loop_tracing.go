package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/httpbridge/internal/providers"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/httpbridge/internal/agent")

func (l *Loop) ID() string { return l.id }

func (l *Loop) Model() string { return l.model }

// IsRunning reports whether a run is in flight.
func (l *Loop) IsRunning() bool { return l.activeRuns.Load() > 0 }

func (l *Loop) startRunSpan(ctx context.Context, req RunRequest) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.llm_call", trace.WithAttributes(
		attribute.String("agent.id", l.id),
		attribute.String("agent.run_id", req.RunID),
		attribute.String("llm.provider", l.provider.Name()),
		attribute.String("llm.model", l.model),
		attribute.Bool("llm.stream", req.Stream),
	))
}

func (l *Loop) endRunSpan(span trace.Span, resp *providers.ChatResponse, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
		)
	}
}
