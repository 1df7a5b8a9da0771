package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/analysis/tokens"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/tutor"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

// TitleAtTurns is the conversation length at which a chat is titled.
const TitleAtTurns = 6

// Syncer reconciles in-memory conversations with the chats table.
type Syncer struct {
	repo      storage.ChatRepository
	tutor     tutor.Client
	maxTokens int
	logger    *zap.Logger
}

// NewSyncer creates a syncer. maxTokens bounds the transcript sent for titling.
func NewSyncer(repo storage.ChatRepository, tutorClient tutor.Client, maxTokens int, logger *zap.Logger) *Syncer {
	return &Syncer{
		repo:      repo,
		tutor:     tutorClient,
		maxTokens: maxTokens,
		logger:    logger.Named("sync"),
	}
}

// Load fetches a conversation. storage.ErrChatNotFound means the chat does
// not exist or belongs to someone else; callers navigate away.
func (s *Syncer) Load(ctx context.Context, chatID, ownerID string) (chat.Conversation, error) {
	conversation, err := s.repo.GetChat(ctx, chatID, ownerID)
	if err != nil {
		if !errors.Is(err, storage.ErrChatNotFound) {
			s.logger.Warn("failed to fetch chat", zap.String("chat_id", chatID), zap.Error(err))
		}
		return chat.Conversation{}, err
	}
	return conversation, nil
}

// Save overwrites the stored turn sequence. Failures are logged and left for
// the next exchange; the in-memory store remains authoritative.
func (s *Syncer) Save(ctx context.Context, chatID string, turns []chat.Turn) error {
	if err := s.repo.UpdateMessages(ctx, chatID, turns); err != nil {
		s.logger.Warn("failed to update chat", zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

// AutoTitle names the chat once it holds exactly TitleAtTurns turns. It
// reports whether a title was stored; failed title requests are ignored.
func (s *Syncer) AutoTitle(ctx context.Context, chatID string, turns []chat.Turn) bool {
	if len(turns) != TitleAtTurns {
		return false
	}

	transcript := tokens.Fit(chat.Transcript(turns), s.maxTokens)

	result, err := s.tutor.RequestTitle(ctx, transcript)
	if err != nil {
		s.logger.Debug("title request failed", zap.String("chat_id", chatID), zap.Error(err))
		return false
	}
	if result.Code != tutor.StatusOK || result.Response == "" {
		return false
	}

	if err := s.repo.UpdateTitle(ctx, chatID, result.Response); err != nil {
		s.logger.Warn("failed to update title", zap.String("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}

// AfterAppend persists the conversation when the latest append completed an
// exchange, then gives it a title if it just reached TitleAtTurns turns. It
// reports whether the row now holds turns.
func (s *Syncer) AfterAppend(ctx context.Context, chatID string, turns []chat.Turn) bool {
	if !chat.EndsExchange(turns) {
		return false
	}
	if err := s.Save(ctx, chatID, turns); err != nil {
		return false
	}
	s.AutoTitle(ctx, chatID, turns)
	return true
}
