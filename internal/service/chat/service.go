package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/analysis/tokens"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/tutor"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

var (
	ErrBusy          = errors.New("a tutor reply is still pending")
	ErrEmptyMessage  = errors.New("message is required")
	ErrTurnNotFound  = errors.New("turn not found")
	ErrNoSimulation  = errors.New("turn does not offer a simulation")
	ErrChatIDMissing = errors.New("chat id is required")
)

// Exchange is the outcome of one Send. Reply is nil when the tutor failed.
type Exchange struct {
	ChatID     string     `json:"chatId"`
	User       chat.Turn  `json:"user"`
	UserIndex  int        `json:"userIndex"`
	Reply      *chat.Turn `json:"reply,omitempty"`
	ReplyIndex int        `json:"replyIndex"`
}

// DefaultIdleTTL is how long an untouched workspace stays in memory.
const DefaultIdleTTL = 30 * time.Minute

// workspace is the live state of one open conversation. lastUsed is guarded
// by Service.mu.
type workspace struct {
	ownerID  string
	store    *Store
	selector *Selector
	lastUsed time.Time
}

// Service encapsulates conversation state management.
type Service struct {
	mu         sync.Mutex
	workspaces map[string]*workspace
	idleTTL    time.Duration
	swept      time.Time

	repo      storage.ChatRepository
	tutor     tutor.Client
	syncer    *Syncer
	catalog   simulation.Catalog
	maxTokens int
	now       func() time.Time
	logger    *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for turn timestamps and idle eviction.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxTokens overrides the transcript budget.
func WithMaxTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithIdleTTL overrides how long an untouched workspace is kept.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// NewService wires the chat service over a chat repository and a tutor.
func NewService(repo storage.ChatRepository, tutorClient tutor.Client, catalog simulation.Catalog, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		workspaces: make(map[string]*workspace),
		idleTTL:    DefaultIdleTTL,
		repo:       repo,
		tutor:      tutorClient,
		catalog:    catalog,
		maxTokens:  tokens.DefaultMaxTokens,
		now:        time.Now,
		logger:     logger.Named("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.syncer = NewSyncer(repo, tutorClient, s.maxTokens, logger)
	return s
}

// Create provisions an empty conversation owned by the caller.
func (s *Service) Create(ctx context.Context, who profile.Identity) (chat.Conversation, error) {
	now := s.now().UTC()
	conversation := chat.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   who.ID,
		Title:     chat.DefaultTitle,
		Turns:     []chat.Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateChat(ctx, conversation); err != nil {
		return chat.Conversation{}, err
	}

	s.mu.Lock()
	s.sweepLocked()
	s.workspaces[conversation.ID] = s.newWorkspace(who.ID)
	s.mu.Unlock()

	return conversation, nil
}

// List returns the caller's conversations, newest first.
func (s *Service) List(ctx context.Context, who profile.Identity) ([]chat.Summary, error) {
	return s.repo.ListChats(ctx, who.ID)
}

// Open loads a conversation into its workspace. The stored row replaces the
// in-memory turns unless a tutor request is in flight or the workspace holds
// turns that were never saved.
func (s *Service) Open(ctx context.Context, who profile.Identity, chatID string) (chat.Conversation, error) {
	if chatID == "" {
		return chat.Conversation{}, ErrChatIDMissing
	}

	conversation, err := s.syncer.Load(ctx, chatID, who.ID)
	if err != nil {
		return chat.Conversation{}, err
	}

	ws := s.workspaceFor(chatID, who.ID, conversation.Turns)
	ws.store.SyncIdle(conversation.Turns)
	conversation.Turns = ws.store.Turns()
	return conversation, nil
}

// Send runs one exchange: the learner's turn, the tutor call and, on success,
// the tutor's turn followed by persistence. A second Send while the first is
// outstanding is dropped with ErrBusy. The stored row is read first so turns
// written by another instance are not overwritten by the save.
func (s *Service) Send(ctx context.Context, who profile.Identity, chatID, message string) (Exchange, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Exchange{}, ErrEmptyMessage
	}

	ws, began, err := s.begin(ctx, who, chatID)
	if err != nil {
		return Exchange{}, err
	}
	if !began {
		return Exchange{}, ErrBusy
	}
	saved := false
	defer func() { ws.store.End(saved) }()

	userTurn := chat.NewUserTurn(message, s.now())
	ws.store.Append(userTurn)

	exchange := Exchange{
		ChatID:    chatID,
		User:      userTurn,
		UserIndex: ws.store.Len() - 1,
	}

	transcript := tokens.Fit(chat.Transcript(ws.store.Turns()), s.maxTokens)

	result, err := s.tutor.Ask(ctx, map[string]any{}, message, transcript)
	if err != nil {
		s.logger.Warn("tutor request failed", zap.String("chat_id", chatID), zap.Error(err))
		return exchange, nil
	}
	if result.Code != tutor.StatusOK {
		s.logger.Warn("tutor returned non-ok code", zap.String("chat_id", chatID), zap.Int("code", result.Code))
		return exchange, nil
	}

	action, err := chat.DecodeSpecialAction(result.SpecialAction)
	if err != nil {
		s.logger.Warn("malformed special action", zap.String("chat_id", chatID), zap.String("raw", result.SpecialAction), zap.Error(err))
	}

	reply := chat.NewTutorTurn(result.Response, action, s.now())
	ws.store.Append(reply)
	exchange.Reply = &reply
	exchange.ReplyIndex = ws.store.Len() - 1

	saved = s.syncer.AfterAppend(context.WithoutCancel(ctx), chatID, ws.store.Turns())

	return exchange, nil
}

// LaunchSimulation activates the simulation offered by the tutor turn at
// index. Identifiers outside the catalog are ignored and report false.
func (s *Service) LaunchSimulation(ctx context.Context, who profile.Identity, chatID string, index int) (simulation.Simulation, bool, error) {
	ws, err := s.acquire(ctx, who, chatID)
	if err != nil {
		return simulation.Unknown, false, err
	}

	turns := ws.store.Turns()
	if index < 0 || index >= len(turns) {
		return simulation.Unknown, false, ErrTurnNotFound
	}
	turn := turns[index]
	if !turn.HasSimulation() {
		return simulation.Unknown, false, ErrNoSimulation
	}

	sim, ok := ws.selector.Activate(turn)
	return sim, ok, nil
}

// DismissSimulation hides the active simulation.
func (s *Service) DismissSimulation(ctx context.Context, who profile.Identity, chatID string) error {
	ws, err := s.acquire(ctx, who, chatID)
	if err != nil {
		return err
	}
	ws.selector.Dismiss()
	return nil
}

// ActiveSimulation returns the simulation currently shown for the chat.
func (s *Service) ActiveSimulation(ctx context.Context, who profile.Identity, chatID string) (simulation.Simulation, bool, error) {
	ws, err := s.acquire(ctx, who, chatID)
	if err != nil {
		return simulation.Unknown, false, err
	}
	sim, ok := ws.selector.Active()
	return sim, ok, nil
}

// begin loads the stored row and marks a tutor request in flight on the
// workspace, syncing it with the row. When the row cannot be read for any
// reason other than the chat being gone, a cached workspace carries on with
// its in-memory turns.
func (s *Service) begin(ctx context.Context, who profile.Identity, chatID string) (*workspace, bool, error) {
	if chatID == "" {
		return nil, false, ErrChatIDMissing
	}

	conversation, err := s.syncer.Load(ctx, chatID, who.ID)
	switch {
	case err == nil:
		ws := s.workspaceFor(chatID, who.ID, conversation.Turns)
		return ws, ws.store.BeginWith(conversation.Turns), nil
	case errors.Is(err, storage.ErrChatNotFound):
		return nil, false, err
	}

	ws, ok := s.cached(chatID, who.ID)
	if !ok {
		return nil, false, err
	}
	return ws, ws.store.TryBegin(), nil
}

// acquire returns the caller's workspace for chatID, loading it on first use.
func (s *Service) acquire(ctx context.Context, who profile.Identity, chatID string) (*workspace, error) {
	if chatID == "" {
		return nil, ErrChatIDMissing
	}

	s.mu.Lock()
	ws, ok := s.workspaces[chatID]
	if ok {
		ws.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		if ws.ownerID != who.ID {
			return nil, storage.ErrChatNotFound
		}
		return ws, nil
	}

	conversation, err := s.Open(ctx, who, chatID)
	if err != nil {
		return nil, err
	}
	return s.workspaceFor(chatID, who.ID, conversation.Turns), nil
}

func (s *Service) cached(chatID, ownerID string) (*workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[chatID]
	if !ok || ws.ownerID != ownerID {
		return nil, false
	}
	ws.lastUsed = s.now()
	return ws, true
}

// workspaceFor returns the workspace for chatID, creating one seeded with
// loaded when none exists for ownerID.
func (s *Service) workspaceFor(chatID, ownerID string, loaded []chat.Turn) *workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	ws, ok := s.workspaces[chatID]
	if !ok || ws.ownerID != ownerID {
		ws = s.newWorkspace(ownerID)
		ws.store.ReplaceAll(loaded)
		s.workspaces[chatID] = ws
	}
	ws.lastUsed = s.now()
	return ws
}

// sweepLocked drops workspaces idle for longer than idleTTL. Workspaces with
// a request in flight or unsaved turns are kept. It runs at most once per
// quarter TTL. The caller holds s.mu.
func (s *Service) sweepLocked() {
	now := s.now()
	if now.Sub(s.swept) < s.idleTTL/4 {
		return
	}
	s.swept = now

	for id, ws := range s.workspaces {
		if now.Sub(ws.lastUsed) < s.idleTTL || ws.store.Busy() || ws.store.Unsaved() {
			continue
		}
		delete(s.workspaces, id)
		s.logger.Debug("evicted idle workspace", zap.String("chat_id", id))
	}
}

func (s *Service) newWorkspace(ownerID string) *workspace {
	return &workspace{
		ownerID:  ownerID,
		store:    NewStore(),
		selector: NewSelector(s.catalog, s.logger),
		lastUsed: s.now(),
	}
}
