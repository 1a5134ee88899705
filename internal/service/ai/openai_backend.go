package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/arwa/internal/config"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
// The default configuration targets Gemini.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
	topP        float32
	maxTokens   int
}

// NewOpenAIBackend builds a client for cfg.BaseURL.
func NewOpenAIBackend(cfg config.AIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	backend := &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
	if cfg.Temperature != nil {
		backend.temperature = float32(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		backend.topP = float32(*cfg.TopP)
	}
	if cfg.MaxTokens != nil {
		backend.maxTokens = *cfg.MaxTokens
	}
	return backend
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return config.ProviderOpenAI }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, system string, history []Turn, text string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: b.temperature,
		TopP:        b.topP,
		MaxTokens:   b.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
