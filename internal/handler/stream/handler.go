package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatHandler "github.com/ItsSitanshu/dhyan.ai/backend/internal/handler/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	chatService "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

// SSE event names.
const (
	EventStart = "start"
	EventTurn  = "turn"
	EventEnd   = "end"
	EventError = "error"
)

// Handler runs one exchange and reports it as Server-Sent Events, for
// EventSource clients that cannot send a request body.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates a stream handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{chatSvc: chatSvc, logger: logger.Named("stream")}
}

// StreamResponse is the data of every event.
type StreamResponse struct {
	ChatID   string     `json:"chatId,omitempty"`
	Index    int        `json:"index"`
	Turn     *chat.Turn `json:"turn,omitempty"`
	Finished bool       `json:"finished,omitempty"`
	Error    string     `json:"error,omitempty"`
	Redirect string     `json:"redirect,omitempty"`
}

// RegisterRoutes mounts the stream route. r must sit behind middleware.RequireReady.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats/{chatID}/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	result, _ := middleware.SessionResult(r.Context())
	var who profile.Identity
	if result.Identity != nil {
		who = *result.Identity
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, data StreamResponse) bool {
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			h.logger.Debug("client went away", zap.String("chat_id", chatID), zap.Error(err))
			return false
		}
		return true
	}

	if !send(EventStart, StreamResponse{ChatID: chatID}) {
		return
	}

	exchange, err := h.chatSvc.Send(r.Context(), who, chatID, message)
	if err != nil {
		send(EventError, errorResponse(chatID, err))
		return
	}

	if !send(EventTurn, StreamResponse{ChatID: chatID, Index: exchange.UserIndex, Turn: &exchange.User}) {
		return
	}

	if exchange.Reply == nil {
		send(EventError, StreamResponse{ChatID: chatID, Error: "the tutor did not answer, please try again"})
		return
	}
	if !send(EventTurn, StreamResponse{ChatID: chatID, Index: exchange.ReplyIndex, Turn: exchange.Reply}) {
		return
	}

	send(EventEnd, StreamResponse{ChatID: chatID, Finished: true})
}

func errorResponse(chatID string, err error) StreamResponse {
	resp := StreamResponse{ChatID: chatID, Error: err.Error()}
	if errors.Is(err, storage.ErrChatNotFound) {
		resp.Redirect = chatHandler.ChatListPath
	}
	return resp
}
