package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	chatService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

// ChatListPath is where clients land when a conversation cannot be opened.
const ChatListPath = "/chat"

// Handler serves conversations and their simulations.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates the chat handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{chatSvc: chatSvc, logger: logger.Named("chat")}
}

// RegisterRoutes mounts the chat routes. r must sit behind middleware.RequireReady.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats", h.handleList)
	r.Post("/chats", h.handleCreate)
	r.Get("/chats/{chatID}", h.handleOpen)
	r.Post("/chats/{chatID}/messages", h.handleSend)
	r.Get("/chats/{chatID}/simulation", h.handleActiveSimulation)
	r.Post("/chats/{chatID}/simulation", h.handleLaunchSimulation)
	r.Delete("/chats/{chatID}/simulation", h.handleDismissSimulation)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.chatSvc.List(r.Context(), identity(r))
	if err != nil {
		h.logger.Error("list chats failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.chatSvc.Create(r.Context(), identity(r))
	if err != nil {
		h.logger.Error("create chat failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, conversation)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.chatSvc.Open(r.Context(), identity(r), chi.URLParam(r, "chatID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversation)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.chatSvc.Send(r.Context(), identity(r), chi.URLParam(r, "chatID"), payload.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}

type simulationResponse struct {
	Active     bool        `json:"active"`
	Simulation interface{} `json:"simulation,omitempty"`
}

func (h *Handler) handleActiveSimulation(w http.ResponseWriter, r *http.Request) {
	sim, ok, err := h.chatSvc.ActiveSimulation(r.Context(), identity(r), chi.URLParam(r, "chatID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	resp := simulationResponse{Active: ok}
	if ok {
		resp.Simulation = sim
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLaunchSimulation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TurnIndex *int `json:"turnIndex"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || payload.TurnIndex == nil {
		utils.RespondError(w, http.StatusBadRequest, "turnIndex is required")
		return
	}

	sim, ok, err := h.chatSvc.LaunchSimulation(r.Context(), identity(r), chi.URLParam(r, "chatID"), *payload.TurnIndex)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	resp := simulationResponse{Active: ok}
	if ok {
		resp.Simulation = sim
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDismissSimulation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DismissSimulation(r.Context(), identity(r), chi.URLParam(r, "chatID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		utils.RespondRedirect(w, http.StatusNotFound, err.Error(), ChatListPath)
	case errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrChatIDMissing),
		errors.Is(err, chatService.ErrNoSimulation):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrTurnNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// identity returns the caller resolved by middleware.ResolveSession.
func identity(r *http.Request) profile.Identity {
	result, _ := middleware.SessionResult(r.Context())
	if result.Identity == nil {
		return profile.Identity{}
	}
	return *result.Identity
}
