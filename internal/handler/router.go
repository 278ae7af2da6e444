package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/idolchat/internal/avatar"
	avatarHandler "github.com/zhouzirui/idolchat/internal/handler/avatar"
	"github.com/zhouzirui/idolchat/internal/handler/chat"
	"github.com/zhouzirui/idolchat/internal/handler/persona"
	"github.com/zhouzirui/idolchat/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/idolchat/internal/middleware"
	personaModel "github.com/zhouzirui/idolchat/internal/model/persona"
	"github.com/zhouzirui/idolchat/internal/service/idol"
	sessionService "github.com/zhouzirui/idolchat/internal/service/session"
	"github.com/zhouzirui/idolchat/pkg/utils"
)

// NewRouter wires the client app: session API, avatar control and the
// renderer websocket.
func NewRouter(manager *sessionService.Manager, hub *avatar.Hub, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(middlewarePkg.CORSConfig{AllowedOrigins: allowedOrigins}))

	avatarH := avatarHandler.New(hub)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/avatar", avatarH.ServeWebSocket)

	r.Route("/api", func(api chi.Router) {
		session.New(manager).RegisterRoutes(api)
		avatarH.RegisterRoutes(api)
	})

	return r
}

// NewBackendRouter wires the reference chat backend. Only allowedOrigins may
// make credentialed cross-origin calls.
func NewBackendRouter(personas personaModel.Store, svc *idol.Service, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(middlewarePkg.CORSConfig{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
	}))

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	chat.New(svc).RegisterRoutes(r)
	persona.New(personas, svc).RegisterRoutes(r)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
