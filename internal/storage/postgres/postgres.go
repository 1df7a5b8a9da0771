// Package postgres stores chats and profiles in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	msgs       JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chats_owner_updated ON chats (owner_id, updated_at DESC);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	level      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Repository implements storage.Repository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Repository)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) CreateChat(ctx context.Context, conversation chat.Conversation) error {
	msgs, err := storage.EncodeTurns(conversation.Turns)
	if err != nil {
		return err
	}
	createdAt := conversation.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO chats (id, owner_id, title, msgs, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, now())
	`, conversation.ID, conversation.OwnerID, conversation.Title, string(msgs), createdAt)
	if err != nil {
		return fmt.Errorf("postgres: insert chat: %w", err)
	}
	return nil
}

func (r *Repository) GetChat(ctx context.Context, id, ownerID string) (chat.Conversation, error) {
	var (
		conversation chat.Conversation
		msgs         []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, msgs, created_at, updated_at
		FROM chats WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&conversation.ID, &conversation.OwnerID, &conversation.Title, &msgs,
		&conversation.CreatedAt, &conversation.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, storage.ErrChatNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("postgres: select chat: %w", err)
	}

	turns, err := storage.DecodeTurns(msgs)
	if err != nil {
		return chat.Conversation{}, err
	}
	conversation.Turns = turns
	return conversation, nil
}

func (r *Repository) UpdateMessages(ctx context.Context, id string, turns []chat.Turn) error {
	msgs, err := storage.EncodeTurns(turns)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats SET msgs = $2::jsonb, updated_at = now() WHERE id = $1`,
		id, string(msgs),
	)
	if err != nil {
		return fmt.Errorf("postgres: update msgs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrChatNotFound
	}
	return nil
}

func (r *Repository) UpdateTitle(ctx context.Context, id, title string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("postgres: update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrChatNotFound
	}
	return nil
}

func (r *Repository) ListChats(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, updated_at FROM chats
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chats: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.Summary, 0)
	for rows.Next() {
		var summary chat.Summary
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chat: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var p profile.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, level, created_at FROM users WHERE id = $1`, userID,
	).Scan(&p.ID, &p.Name, &p.Level, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, storage.ErrProfileNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("postgres: select profile: %w", err)
	}
	return p, nil
}

func (r *Repository) CreateProfile(ctx context.Context, p profile.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, level, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Name, p.Level, createdAt)
	if err != nil {
		return fmt.Errorf("postgres: insert profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrProfileExists
	}
	return nil
}
