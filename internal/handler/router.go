package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/realtime"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/session"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/simulation"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/stream"
	middlewarePkg "github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	simulationModel "github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	chatService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/chat"
	sessionService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

// Dependencies are the services the router wires to HTTP routes.
type Dependencies struct {
	Auth     auth.Provider
	Profiles storage.ProfileRepository
	Gate     *sessionService.Gate
	Chat     *chatService.Service
	Catalog  simulationModel.Catalog
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	sessionHandler := session.New(deps.Auth, deps.Profiles, deps.Gate, logger)
	simulationHandler := simulation.New(deps.Catalog)
	realtimeHandler := realtime.New(deps.Gate, logger)
	chatHandler := chat.New(deps.Chat, logger)
	streamHandler := stream.New(deps.Chat, logger)

	r.Route("/api", func(api chi.Router) {
		simulationHandler.RegisterRoutes(api)
		realtimeHandler.RegisterRoutes(api)

		api.Group(func(gated chi.Router) {
			gated.Use(middlewarePkg.ResolveSession(deps.Gate))
			sessionHandler.RegisterRoutes(gated)

			gated.Group(func(ready chi.Router) {
				ready.Use(middlewarePkg.RequireReady)
				chatHandler.RegisterRoutes(ready)
				streamHandler.RegisterRoutes(ready)
			})
		})
	})

	return r
}
