package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/model/persona"
	"github.com/zhouzirui/arwa/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
	active   persona.Persona
	logger   *zap.Logger
}

// New 创建persona处理器，active 为当前对话使用的 persona
func New(personas persona.Store, active persona.Persona, logger *zap.Logger) *Handler {
	return &Handler{
		personas: personas,
		active:   active,
		logger:   logger,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona", h.handleActivePersona)
	r.Get("/personas", h.handleListPersonas)
}

// handleActivePersona 返回界面文案与身份信息
func (h *Handler) handleActivePersona(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, h.logger, http.StatusOK, h.active)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	if h.personas == nil {
		utils.RespondJSON(w, h.logger, http.StatusOK, []persona.Persona{h.active})
		return
	}
	utils.RespondJSON(w, h.logger, http.StatusOK, h.personas.List())
}
