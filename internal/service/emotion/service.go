package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/model/persona"
)

// Config 控制情绪分析服务的行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Guidance 表示情绪分析的结果以及对回复语气的建议。
type Guidance struct {
	Decision   analysis.Decision
	Style      string
	Confidence float64
	Reason     string
}

// Service 使用大模型判断偶像回复的情绪，并在必要时回退到启发式规则。
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(user, assistant string) analysis.Decision
	historyLimit int
	logger       *zap.Logger
}

// NewService 创建情绪分析服务。chatModel 可重用现有的大模型实例。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config, logger *zap.Logger) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.Analyze,
		historyLimit: historyLimit,
		logger:       logger.Named("emotion"),
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(emotionSystemPrompt),
		schema.UserMessage(emotionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回大模型情绪分类是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Analyze 根据会话上下文与回复判断偶像应呈现的情绪。
func (s *Service) Analyze(ctx context.Context, p *persona.Persona, history []chat.Turn, userMessage, reply string) Guidance {
	if !s.Enabled() {
		return s.fallbackGuidance(userMessage, reply)
	}

	input := map[string]any{
		"persona":      summarizePersona(p),
		"history":      formatHistory(history, s.historyLimit),
		"user_message": strings.TrimSpace(userMessage),
		"reply":        strings.TrimSpace(reply),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		s.logger.Warn("classifier invoke failed, use fallback", zap.Error(err))
		return s.fallbackGuidance(userMessage, reply)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackGuidance(userMessage, reply)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.logger.Warn("classifier output parse failed, use fallback", zap.Error(err))
		return s.fallbackGuidance(userMessage, reply)
	}

	label, ok := analysis.Parse(result.Emotion)
	if !ok {
		return s.fallbackGuidance(userMessage, reply)
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Guidance{
		Decision:   analysis.Decision{Emotion: label, Intensity: clampIntensity(result.Intensity)},
		Style:      strings.TrimSpace(result.Style),
		Confidence: confidence,
		Reason:     strings.TrimSpace(result.Reason),
	}
}

func (s *Service) fallbackGuidance(userMessage, reply string) Guidance {
	decision := s.fallback(userMessage, reply)

	confidence := 0.3
	if decision.Score > 0 {
		confidence = 0.55
	}

	return Guidance{
		Decision:   decision,
		Confidence: confidence,
		Reason:     "fallback",
	}
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func summarizePersona(p *persona.Persona) string {
	if p == nil {
		return "无特定角色设定。"
	}

	sections := []string{fmt.Sprintf("名字:%s", strings.TrimSpace(p.Name))}
	if style := strings.TrimSpace(p.Style); style != "" {
		sections = append(sections, fmt.Sprintf("风格:%s", style))
	}
	if tone := strings.TrimSpace(p.SpeechTone); tone != "" {
		sections = append(sections, fmt.Sprintf("语气:%s", tone))
	}
	return strings.Join(sections, " | ")
}

func formatHistory(turns []chat.Turn, limit int) string {
	if len(turns) == 0 {
		return "无历史对话"
	}
	if limit < 1 {
		limit = 1
	}
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for i := start; i < len(turns); i++ {
		turn := turns[i]
		content := strings.TrimSpace(turn.Text)
		if content == "" {
			continue
		}
		role := "用户"
		if turn.Role == chat.RoleAssistant {
			role = "偶像"
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(role)
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "无历史对话"
	}
	return builder.String()
}

func clampIntensity(val float64) float64 {
	if val <= 0 {
		return chat.DefaultIntensity
	}
	if val > 1 {
		return 1
	}
	return val
}

type classifierPayload struct {
	Emotion    string  `json:"emotion"`
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence"`
	Style      string  `json:"style"`
	Reason     string  `json:"reason"`
}

const emotionSystemPrompt = "你是一名虚拟偶像的情绪导演。请阅读角色设定、最近对话、用户输入以及偶像的回复，判断偶像说出这句回复时应呈现的情绪。\n输出要求：只返回一个 JSON 对象，字段如下：emotion (必须是 neutral/happy/excited/sad/angry/shy/confident 之一)、intensity (0~1 之间的小数)、confidence (0~1 之间的小数)、style (一句话描述表情与语气)、reason (简要理由)。不得输出多余文本。"

const emotionUserPrompt = "角色信息：\n{persona}\n\n最近对话：\n{history}\n\n用户最新输入：\n{user_message}\n\n偶像回复：\n{reply}\n\n请基于这些信息给出 JSON。"
