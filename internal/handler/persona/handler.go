package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/idolchat/internal/model/persona"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
	"github.com/zhouzirui/idolchat/pkg/utils"
)

// MoodSource 提供偶像当前的心情
type MoodSource interface {
	Mood() emotionservice.State
}

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
	mood     MoodSource
}

// New 创建persona处理器
func New(personas persona.Store, mood MoodSource) *Handler {
	return &Handler{
		personas: personas,
		mood:     mood,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/persona", h.handleCurrent)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

// handleCurrent 返回当前扮演的偶像及其心情
func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"persona": h.personas.Default()}
	if h.mood != nil {
		state := h.mood.Mood()
		payload["emotion"] = state.Emotion
		payload["emotion_intensity"] = state.Intensity
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}
