package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/arwa/internal/config"
)

// ArkBackend runs turns through an eino chain backed by a Volcengine Ark model.
type ArkBackend struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackend creates the Ark chat model described by cfg.
func NewArkBackend(ctx context.Context, cfg config.AIConfig) (*ArkBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ark provider: CHAT_MODEL is required")
	}

	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	var topP *float32
	if cfg.TopP != nil {
		val := float32(*cfg.TopP)
		topP = &val
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return newArkBackend(ctx, chatModel)
}

func newArkBackend(ctx context.Context, chatModel model.BaseChatModel) (*ArkBackend, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkBackend{chain: runnable}, nil
}

// Name implements Backend.
func (b *ArkBackend) Name() string { return config.ProviderArk }

// Complete implements Backend.
func (b *ArkBackend) Complete(ctx context.Context, system string, history []Turn, text string) (string, error) {
	response, err := b.chain.Invoke(ctx, map[string]any{
		"system":  system,
		"history": toSchemaMessages(history),
		"query":   text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", fmt.Errorf("empty response from chat model")
	}
	return response.Content, nil
}

func toSchemaMessages(history []Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
