package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/idolchat/internal/model/chat"
	sessionservice "github.com/zhouzirui/idolchat/internal/service/session"
	"github.com/zhouzirui/idolchat/pkg/utils"
)

// Handler 会话接口的HTTP处理器
type Handler struct {
	manager *sessionservice.Manager
}

// New 创建会话处理器
func New(manager *sessionservice.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleLogin)
	r.Route("/session/{sessionID}", func(s chi.Router) {
		s.Delete("/", h.handleLogout)
		s.Post("/messages", h.handleSubmit)
		s.Get("/transcript", h.handleTranscript)
		s.Get("/emotion", h.handleEmotion)
		s.Get("/history", h.handleHistory)
	})
}

// handleLogin 以给定身份开启会话
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var identity chat.Identity
	if err := utils.DecodeJSON(w, r, &identity); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, _, err := h.manager.Start(r.Context(), identity)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sessionservice.ErrUserIDRequired) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, info)
}

// handleLogout 结束会话并清空对话
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit 提交一条用户消息，回复异步到达
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, accepted := controller.Submit(r.Context(), payload.Text)
	utils.RespondJSON(w, http.StatusAccepted, map[string]any{
		"accepted": accepted,
		"phase":    controller.Phase(),
	})
}

// handleTranscript 返回当前对话与提交状态
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"turns": controller.Transcript(),
		"phase": controller.Phase(),
	})
}

// handleEmotion 返回头像最后呈现的情绪
func (h *Handler) handleEmotion(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, controller.LastEmotion())
}

// handleHistory 读取历史，远端不可用时回退到本地
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controller(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages": controller.History(r.Context()),
	})
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*sessionservice.Controller, bool) {
	_, controller, err := h.manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return nil, false
	}
	return controller, true
}

func respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessionservice.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
