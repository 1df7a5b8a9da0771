package chat

import "time"

// DefaultTitle names a chat until it is titled automatically.
const DefaultTitle = "New Chat"

// Conversation is an identified, ordered sequence of turns plus a title.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"msgs"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the sidebar view of a conversation.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}
