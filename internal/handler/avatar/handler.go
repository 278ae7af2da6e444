package avatar

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/idolchat/internal/avatar"
	"github.com/zhouzirui/idolchat/pkg/utils"
)

// Handler 暴露头像广播中心的渲染端 websocket 与追踪开关
type Handler struct {
	hub *avatar.Hub
}

// New 创建头像处理器
func New(hub *avatar.Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 注册头像控制路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/avatar/tracking", h.handleTrackingState)
	r.Post("/avatar/tracking", h.handleSetTracking)
}

// ServeWebSocket 升级渲染端连接
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeHTTP(w, r)
}

func (h *Handler) handleTrackingState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"enabled":   h.hub.Tracking(),
		"renderers": h.hub.ClientCount(),
	})
}

func (h *Handler) handleSetTracking(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.hub.SetTracking(*payload.Enabled)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"enabled": h.hub.Tracking()})
}
