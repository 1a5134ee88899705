package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/conversation"
	"github.com/zhouzirui/arwa/internal/handler/persona"
	"github.com/zhouzirui/arwa/internal/handler/voicechat"
	middlewarePkg "github.com/zhouzirui/arwa/internal/middleware"
	personaModel "github.com/zhouzirui/arwa/internal/model/persona"
	"github.com/zhouzirui/arwa/internal/service/speech"
	"github.com/zhouzirui/arwa/pkg/utils"
)

// Dependencies 路由所需的服务
type Dependencies struct {
	Personas    personaModel.Store
	Persona     personaModel.Persona
	Chat        conversation.ChatService
	Platforms   voicechat.PlatformFactory
	Languages   speech.AdapterOptions
	Connections *voicechat.ConnectionManager
	Logger      *zap.Logger
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

	personaHandler := persona.New(deps.Personas, deps.Persona, logger)
	wsHandler := voicechat.New(deps.Chat, deps.Platforms, deps.Languages, deps.Connections, logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
		})

		personaHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
