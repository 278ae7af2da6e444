package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

const (
	maxErrorBody    = 512
	maxResponseBody = 4 << 20
)

// Config holds the remote chat service endpoint settings.
type Config struct {
	BaseURL  string
	Platform string
	Timeout  time.Duration
}

// ChatRequest is the wire body of POST /chat.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
}

// ChatResponse is the wire body returned by POST /chat.
type ChatResponse struct {
	Response         *string  `json:"response"`
	Emotion          string   `json:"emotion,omitempty"`
	EmotionIntensity *float64 `json:"emotion_intensity,omitempty"`
}

// HistoryResponse is the wire body returned by GET /chat/history/{userID}.
type HistoryResponse struct {
	Messages []chat.Turn `json:"messages"`
}

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL  string
	platform string
	http     *http.Client
	logger   *zap.Logger
}

// NewHTTPClient builds a client for cfg. A nil httpClient gets one with cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *HTTPClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	platform := cfg.Platform
	if platform == "" {
		platform = "web"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		platform: platform,
		http:     httpClient,
		logger:   logger.Named("gateway"),
	}
}

// Send posts one user message and decodes the assistant reply.
func (c *HTTPClient) Send(ctx context.Context, userID, text string) (chat.Reply, error) {
	body, err := json.Marshal(ChatRequest{UserID: userID, Message: text, Platform: c.platform})
	if err != nil {
		return chat.Reply{}, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload ChatResponse
	if err := c.do(req, &payload); err != nil {
		return chat.Reply{}, err
	}
	if payload.Response == nil {
		return chat.Reply{}, fmt.Errorf("%w: missing response field", ErrMalformed)
	}

	return chat.Reply{
		Text:             *payload.Response,
		Emotion:          payload.Emotion,
		EmotionIntensity: payload.EmotionIntensity,
	}, nil
}

// History fetches the server-side transcript for userID.
func (c *HTTPClient) History(ctx context.Context, userID string) ([]chat.Turn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/history/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var payload HistoryResponse
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	if payload.Messages == nil {
		return []chat.Turn{}, nil
	}
	return payload.Messages, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("chat gateway rejected request",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	// The body must be exactly one JSON value; trailing bytes are malformed.
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
