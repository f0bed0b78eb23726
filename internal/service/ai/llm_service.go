package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
)

// HistoryLimit is how many prior transcript turns accompany each new user message.
const HistoryLimit = 5

// Service wraps the chat-completion endpoint behind an eino chain.
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// ReplyInput carries everything the companion prompt is built from.
type ReplyInput struct {
	SessionID   string
	Persona     *persona.Persona
	Mood        diary.Mood
	Preferences []string
	TurnNumber  int
	History     []chat.Message
	Message     string
	Emotion     string
}

// NewService creates the service with the Ark model described by cfg.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel builds the chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
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
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled reports whether replies are streamed over SSE.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Reply generates the companion's answer to one user turn.
func (s *Service) Reply(ctx context.Context, in ReplyInput) (string, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(in))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion")
	}

	log.Debug("generated reply", "session", in.SessionID, "turn", in.TurnNumber, "length", len(content))
	return content, nil
}

// StreamReply streams the companion's answer chunk by chunk.
func (s *Service) StreamReply(ctx context.Context, in ReplyInput) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// Complete sends a single system + user exchange with no history.
func (s *Service) Complete(ctx context.Context, system, query string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  system,
		"history": []*schema.Message(nil),
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	return response.Content, nil
}

func (s *Service) buildChainInput(in ReplyInput) map[string]any {
	return map[string]any{
		"system":  BuildCompanionPrompt(in),
		"history": buildHistoryMessages(in.History),
		"query":   in.Message,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > HistoryLimit {
		start = len(messages) - HistoryLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
