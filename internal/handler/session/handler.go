package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	sessionService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

// Handler serves sign-up, sign-in, the session gate and profile onboarding.
type Handler struct {
	auth     auth.Provider
	profiles storage.ProfileRepository
	gate     *sessionService.Gate
	logger   *zap.Logger
}

// New creates the session handler.
func New(provider auth.Provider, profiles storage.ProfileRepository, gate *sessionService.Gate, logger *zap.Logger) *Handler {
	return &Handler{
		auth:     provider,
		profiles: profiles,
		gate:     gate,
		logger:   logger.Named("session"),
	}
}

// RegisterRoutes mounts the routes. r must sit behind middleware.ResolveSession.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/signup", h.handleSignUp)
	r.Post("/auth/signin", h.handleSignIn)
	r.Post("/auth/signout", h.handleSignOut)
	r.Get("/session", h.handleSession)
	r.Post("/profile", h.handleCreateProfile)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.auth.SignUp(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.auth.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r.Context())
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.logger.Warn("sign out failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "sign out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionResult(r.Context())
	if !ok {
		result = h.gate.Resolve(r.Context(), middleware.Token(r))
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	result, _ := middleware.SessionResult(r.Context())
	if result.Identity == nil {
		utils.RespondError(w, http.StatusUnauthorized, "sign in required")
		return
	}

	var payload struct {
		Name  string `json:"name"`
		Level string `json:"level"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := profile.Profile{
		ID:    result.Identity.ID,
		Name:  name,
		Level: strings.TrimSpace(payload.Level),
	}
	if err := h.profiles.CreateProfile(r.Context(), p); err != nil {
		if errors.Is(err, storage.ErrProfileExists) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("create profile failed", zap.String("user_id", p.ID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, h.gate.Resolve(r.Context(), middleware.SessionToken(r.Context())))
}

func (h *Handler) respondAuthError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	default:
		h.logger.Error("auth request failed", zap.Error(err))
		utils.RespondError(w, status, "authentication failed")
		return
	}
	utils.RespondError(w, status, auth.DisplayMessage(err))
}
