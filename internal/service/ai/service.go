// Package ai generates assistant replies with an eino chat chain.
package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voicelab/voice-widget/backend/internal/config"
)

// Service encapsulates AI-powered reply generation.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// Respond generates the assistant reply for one transcribed utterance.
// Conversation state lives on the client; each call is self-contained.
func (s *Service) Respond(ctx context.Context, requestID, userMessage string) (string, error) {
	input := map[string]any{
		"system": SystemPrompt(),
		"query":  userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated response request=%s length=%d", requestID, len(response.Content))
	return response.Content, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}
