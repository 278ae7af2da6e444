package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/idolchat/internal/gateway"
	"github.com/zhouzirui/idolchat/internal/service/idol"
	"github.com/zhouzirui/idolchat/pkg/utils"
)

// Handler 聊天后端的HTTP处理器
type Handler struct {
	svc *idol.Service
}

// New 创建聊天处理器
func New(svc *idol.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/history/{userID}", h.handleHistory)
}

// handleChat 生成偶像回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload gateway.ChatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Chat(r.Context(), payload.UserID, payload.Message, payload.Platform)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, idol.ErrUserIDRequired) || errors.Is(err, idol.ErrMessageRequired) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	reply := result.Reply
	intensity := result.Intensity
	utils.RespondJSON(w, http.StatusOK, gateway.ChatResponse{
		Response:         &reply,
		Emotion:          string(result.Emotion),
		EmotionIntensity: &intensity,
	})
}

// handleHistory 返回后端保存的对话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := h.svc.History(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, gateway.HistoryResponse{Messages: turns})
}
