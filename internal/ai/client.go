package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/findoc/pkg/models"
	"github.com/sashabaranov/go-openai"
)

// ChatProvider implements models.AIProvider against any OpenAI-compatible
// chat completions endpoint (OpenAI itself, Ollama, vLLM).
type ChatProvider struct {
	client  *openai.Client
	name    string
	model   string
	timeout time.Duration
}

// NewChatProvider builds a provider. An empty baseURL keeps the OpenAI default.
func NewChatProvider(name, baseURL, apiKey, model string, timeout time.Duration) *ChatProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &ChatProvider{
		client:  openai.NewClientWithConfig(cfg),
		name:    name,
		model:   model,
		timeout: timeout,
	}
}

func (p *ChatProvider) Name() string  { return p.name }
func (p *ChatProvider) Model() string { return p.model }

func (p *ChatProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	slog.Debug("requesting chat completion", "provider", p.name, "model", p.model)
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s after %s", ErrInferenceTimeout, p.name, p.timeout)
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, p.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion (finish_reason=%s)", ErrInvalidResponse, resp.Choices[0].FinishReason)
	}
	return content, nil
}

var _ models.AIProvider = (*ChatProvider)(nil)
