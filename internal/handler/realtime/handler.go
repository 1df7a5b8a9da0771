package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/middleware"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Watcher is the part of the session gate the feed needs.
type Watcher interface {
	Watch(ctx context.Context, token string, emit func(session.Result)) error
}

// Handler pushes session gate transitions to the browser over a websocket so
// the UI re-renders on sign-in or sign-out elsewhere.
type Handler struct {
	gate     Watcher
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New creates the realtime handler.
func New(gate Watcher, logger *zap.Logger) *Handler {
	return &Handler{
		gate: gate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("realtime"),
	}
}

type outgoingMessage struct {
	Type      string         `json:"type"`
	Data      session.Result `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// RegisterRoutes mounts the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/session", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.Token(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	results := make(chan session.Result, 8)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		err := h.gate.Watch(ctx, token, func(result session.Result) {
			select {
			case results <- result:
			case <-ctx.Done():
			}
		})
		if err != nil {
			h.logger.Warn("session watch failed", zap.Error(err))
			cancel()
		}
	}()

	readDone := make(chan struct{})
	go h.readLoop(conn, cancel, readDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	defer func() {
		cancel()
		<-watchDone
		conn.Close()
		<-readDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case result := <-results:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := outgoingMessage{Type: "session", Data: result, Timestamp: time.Now().Unix()}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed. The
// feed is one-way; anything the client sends is ignored.
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}
