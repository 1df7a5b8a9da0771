package storage

import (
	"context"
	"errors"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

// ChatRepository is the chats table: one row per conversation holding its
// title and the serialized turn sequence.
type ChatRepository interface {
	CreateChat(ctx context.Context, conversation chat.Conversation) error
	// GetChat returns ErrChatNotFound when no row matches both id and owner.
	GetChat(ctx context.Context, id, ownerID string) (chat.Conversation, error)
	// UpdateMessages overwrites the whole turn sequence of the row.
	UpdateMessages(ctx context.Context, id string, turns []chat.Turn) error
	UpdateTitle(ctx context.Context, id, title string) error
	ListChats(ctx context.Context, ownerID string) ([]chat.Summary, error)
}

// ProfileRepository is the users table keyed by principal identifier.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	CreateProfile(ctx context.Context, p profile.Profile) error
}

// Repository bundles both tables behind one backend.
type Repository interface {
	ChatRepository
	ProfileRepository
	Migrate(ctx context.Context) error
	Close() error
}
