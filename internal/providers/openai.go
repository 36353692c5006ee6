package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultOpenAIBase = "https://api.openai.com/v1"
	chatCompletions   = "/chat/completions"
	sseDataPrefix     = "data: "
	sseDone           = "[DONE]"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Groq, OpenRouter, DeepSeek, vLLM, Ollama).
type OpenAIProvider struct {
	name         string
	apiKey       string
	endpoint     string
	defaultModel string
	client       *http.Client
	retry        RetryConfig
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = defaultOpenAIBase
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		endpoint:     strings.TrimRight(apiBase, "/") + chatCompletions,
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry: DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the backoff policy.
func (p *OpenAIProvider) WithRetryConfig(cfg RetryConfig) *OpenAIProvider {
	p.retry = cfg
	return p
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	MaxTokens     any            `json:"max_tokens,omitempty"`
	Temperature   any            `json:"temperature,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (p *OpenAIProvider) newRequest(req ChatRequest, stream bool) chatCompletionRequest {
	out := chatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Stream:      stream,
		MaxTokens:   req.Options[OptMaxTokens],
		Temperature: req.Options[OptTemperature],
	}
	if out.Model == "" {
		out.Model = p.defaultModel
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return out
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.newRequest(req, false)
	return RetryDo(ctx, p.retry, func() (*ChatResponse, error) {
		rc, err := p.post(ctx, body)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var resp chatCompletionResponse
		if err := json.NewDecoder(rc).Decode(&resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}
		out := &ChatResponse{FinishReason: "stop", Usage: resp.Usage.toUsage()}
		if len(resp.Choices) > 0 {
			out.Content = resp.Choices[0].Message.Content
			if fr := resp.Choices[0].FinishReason; fr != "" {
				out.FinishReason = fr
			}
		}
		return out, nil
	})
}

// ChatStream retries only while connecting; once the event stream has
// started, errors are returned as is.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body := p.newRequest(req, true)
	rc, err := RetryDo(ctx, p.retry, func() (io.ReadCloser, error) {
		return p.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	emit := func(c StreamChunk) {
		if onChunk != nil {
			onChunk(c)
		}
	}

	out := &ChatResponse{FinishReason: "stop"}
	var content strings.Builder
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), sseDataPrefix)
		if !ok {
			continue
		}
		if data == sseDone {
			break
		}
		var chunk chatCompletionChunk
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if u := chunk.Usage.toUsage(); u != nil {
			out.Usage = u
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			emit(StreamChunk{Content: choice.Delta.Content})
		}
		if choice.FinishReason != "" {
			out.FinishReason = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}
	out.Content = content.String()
	emit(StreamChunk{Done: true})
	return out, nil
}

// post sends body and returns the response stream on 200; any other
// status becomes an *HTTPError for RetryDo to classify.
func (p *OpenAIProvider) post(ctx context.Context, body chatCompletionRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       p.name + ": " + strings.TrimSpace(string(msg)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta        chatMessage `json:"delta"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usagePayload) toUsage() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
