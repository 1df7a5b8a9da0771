package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
)

// MemoryRepository keeps rows in process memory, suitable for development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	chats    map[string]chat.Conversation
	profiles map[string]profile.Profile
	now      func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository bootstraps an empty in-memory row store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chats:    make(map[string]chat.Conversation),
		profiles: make(map[string]profile.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Migrate(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) CreateChat(_ context.Context, conversation chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	conversation.UpdatedAt = now
	conversation.Turns = cloneTurns(conversation.Turns)
	r.chats[conversation.ID] = conversation
	return nil
}

func (r *MemoryRepository) GetChat(_ context.Context, id, ownerID string) (chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.chats[id]
	if !ok || conversation.OwnerID != ownerID {
		return chat.Conversation{}, ErrChatNotFound
	}
	conversation.Turns = cloneTurns(conversation.Turns)
	return conversation, nil
}

func (r *MemoryRepository) UpdateMessages(_ context.Context, id string, turns []chat.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.chats[id]
	if !ok {
		return ErrChatNotFound
	}
	conversation.Turns = cloneTurns(turns)
	conversation.UpdatedAt = r.now()
	r.chats[id] = conversation
	return nil
}

func (r *MemoryRepository) UpdateTitle(_ context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.chats[id]
	if !ok {
		return ErrChatNotFound
	}
	conversation.Title = title
	conversation.UpdatedAt = r.now()
	r.chats[id] = conversation
	return nil
}

func (r *MemoryRepository) ListChats(_ context.Context, ownerID string) ([]chat.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]chat.Summary, 0)
	for _, conversation := range r.chats {
		if conversation.OwnerID != ownerID {
			continue
		}
		summaries = append(summaries, chat.Summary{
			ID:        conversation.ID,
			Title:     conversation.Title,
			UpdatedAt: conversation.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (r *MemoryRepository) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return profile.Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (r *MemoryRepository) CreateProfile(_ context.Context, p profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; ok {
		return ErrProfileExists
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.profiles[p.ID] = p
	return nil
}

func cloneTurns(turns []chat.Turn) []chat.Turn {
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied
}
