package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	Backend     BackendConfig
	Gateway     GatewayConfig
	History     HistoryConfig
	AI          AIConfig
	Log         LogConfig
	PersonaFile string `env:"PERSONA_FILE"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Backend.resolveAddr(); err != nil {
		return nil, err
	}
	if err := cfg.AI.loadOptional(); err != nil {
		return nil, err
	}
	if cfg.AI.EmotionHistoryLimit < 1 {
		cfg.AI.EmotionHistoryLimit = 1
	}

	return cfg, nil
}

// ServerConfig 描述前端会话服务（客户端应用）的监听配置。
type ServerConfig struct {
	Addr           string   `env:"IDOLCHAT_ADDR" envDefault:"127.0.0.1:5173"`
	AllowedOrigins []string `env:"IDOLCHAT_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:5174"`
}

// BackendConfig 描述参考聊天后端的配置。
type BackendConfig struct {
	Port          string  `env:"PORT" envDefault:"8002"`
	HistoryDriver string  `env:"BACKEND_HISTORY_DRIVER" envDefault:"sqlite"`
	HistoryPath   string  `env:"BACKEND_HISTORY_PATH" envDefault:"data/idolmcp.db"`
	MaxMemories   int     `env:"MAX_MEMORIES" envDefault:"100"`
	DecayRate     float64 `env:"EMOTION_DECAY_RATE" envDefault:"0.1"`

	// MemoryExpiryDays 天前的对话记录会被定期清理，0 表示永久保留。
	MemoryExpiryDays int      `env:"MEMORY_EXPIRY_DAYS" envDefault:"30"`
	AllowedOrigins   []string `env:"BACKEND_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:5174"`

	Addr string
}

// Retention 返回对话记录的保留时长，0 表示不过期。
func (c BackendConfig) Retention() time.Duration {
	if c.MemoryExpiryDays <= 0 {
		return 0
	}
	return time.Duration(c.MemoryExpiryDays) * 24 * time.Hour
}

// resolveAddr 解析服务器监听地址。
func (c *BackendConfig) resolveAddr() error {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8002"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8002" 或 "127.0.0.1:8002"。
		c.Addr = port
		return nil
	}

	if strings.Contains(port, " ") {
		return fmt.Errorf("invalid PORT value: %q", port)
	}

	c.Addr = ":" + port
	return nil
}

// GatewayConfig 描述远端聊天服务的访问方式。
type GatewayConfig struct {
	BaseURL  string        `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8002"`
	Platform string        `env:"CHAT_PLATFORM" envDefault:"web"`
	Timeout  time.Duration `env:"CHAT_TIMEOUT" envDefault:"30s"`
}

// HistoryConfig 描述本地兜底历史的存储方式。
type HistoryConfig struct {
	Driver        string `env:"HISTORY_DRIVER" envDefault:"file"`
	Path          string `env:"HISTORY_PATH" envDefault:"data/idolmcp_chat_history.json"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LogConfig 控制日志级别与输出格式。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey              string `env:"ARK_API_KEY"`
	AccessKey           string `env:"ARK_ACCESS_KEY"`
	SecretKey           string `env:"ARK_SECRET_KEY"`
	Model               string `env:"ARK_MODEL"`
	BaseURL             string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region              string `env:"ARK_REGION" envDefault:"cn-beijing"`
	EmotionLLMEnabled   bool   `env:"AI_EMOTION_LLM_ENABLED" envDefault:"false"`
	EmotionHistoryLimit int    `env:"AI_EMOTION_HISTORY_LIMIT" envDefault:"6"`

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return chatModel, nil
}

// loadOptional 读取未设置时需要保持为空的采样参数。
func (c *AIConfig) loadOptional() error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}

	c.Temperature = temperature
	c.TopP = topP
	c.MaxTokens = maxTokens
	return nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
