package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/model/persona"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
)

// Service 通过 eino chain 生成偶像的回复。
type Service struct {
	chatModel    model.ChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	logger       *zap.Logger
}

// NewService 基于 chatModel 编译回复 chain，historyLimit 限制携带的历史轮数。
func NewService(ctx context.Context, chatModel model.ChatModel, historyLimit int, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

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

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		historyLimit: historyLimit,
		logger:       logger.Named("ai"),
	}, nil
}

// ChatModel 返回底层的聊天模型，便于情绪分类复用。
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// Respond 生成偶像对 userMessage 的回复。
func (s *Service) Respond(ctx context.Context, p *persona.Persona, history []chat.Turn, userMessage string, mood *emotionservice.State) (string, error) {
	input := map[string]any{
		"system":  buildSystemPrompt(p, mood),
		"history": s.buildHistoryMessages(history),
		"query":   userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("empty response from chat model")
	}

	s.logger.Debug("generated response", zap.String("persona", p.ID), zap.Int("length", len(response.Content)))
	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > s.historyLimit {
		startIdx = len(turns) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return history
}
