package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/httpbridge/internal/providers"
)

// Loop is a provider-backed agent: it keeps a short per-session history and
// asks the chat provider for the next assistant turn.
type Loop struct {
	id           string
	provider     providers.Provider
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
	historyLimit int

	history    *historyStore
	activeRuns atomic.Int32
}

// LoopConfig configures a new Loop.
type LoopConfig struct {
	ID           string
	Provider     providers.Provider
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	HistoryLimit int // max user turns kept per session (0 = default 20)
}

const defaultHistoryLimit = 20

func NewLoop(cfg LoopConfig) *Loop {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Loop{
		id:           cfg.ID,
		provider:     cfg.Provider,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		historyLimit: limit,
		history:      newHistoryStore(),
	}
}

// Run processes a single message. It blocks until the provider answers.
func (l *Loop) Run(ctx context.Context, req RunRequest, onChunk func(string)) (*RunResult, error) {
	l.activeRuns.Add(1)
	defer l.activeRuns.Add(-1)

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	start := time.Now()
	ctx, span := l.startRunSpan(ctx, req)

	messages := l.buildMessages(req.SessionKey, req.Message)
	chatReq := providers.ChatRequest{
		Messages: messages,
		Model:    l.model,
		Options:  map[string]interface{}{},
	}
	if l.maxTokens > 0 {
		chatReq.Options[providers.OptMaxTokens] = l.maxTokens
	}
	if l.temperature > 0 {
		chatReq.Options[providers.OptTemperature] = l.temperature
	}

	var resp *providers.ChatResponse
	var err error
	if req.Stream && onChunk != nil {
		resp, err = l.provider.ChatStream(ctx, chatReq, func(c providers.StreamChunk) {
			if c.Content != "" {
				onChunk(c.Content)
			}
		})
	} else {
		resp, err = l.provider.Chat(ctx, chatReq)
	}
	l.endRunSpan(span, resp, err)
	if err != nil {
		slog.Warn("agent run failed", "agent", l.id, "session", req.SessionKey, "error", err)
		return nil, fmt.Errorf("agent %s: %w", l.id, err)
	}

	content := SanitizeAssistantContent(resp.Content)
	l.history.append(req.SessionKey,
		providers.Message{Role: "user", Content: req.Message},
		providers.Message{Role: "assistant", Content: content},
	)
	slog.Debug("agent run completed", "agent", l.id, "run", req.RunID, "duration", time.Since(start))

	return &RunResult{Content: content, RunID: req.RunID, Usage: resp.Usage}, nil
}
