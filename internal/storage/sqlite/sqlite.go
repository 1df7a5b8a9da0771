// Package sqlite stores chats and profiles in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	msgs       TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chats_owner_updated ON chats (owner_id, updated_at DESC);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	level      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Repository implements storage.Repository on SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private in-memory database.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate creates the chats and users tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) CreateChat(ctx context.Context, conversation chat.Conversation) error {
	msgs, err := storage.EncodeTurns(conversation.Turns)
	if err != nil {
		return err
	}
	now := r.now()
	createdAt := conversation.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chats (id, owner_id, title, msgs, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conversation.ID, conversation.OwnerID, conversation.Title, string(msgs), createdAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert chat: %w", err)
	}
	return nil
}

func (r *Repository) GetChat(ctx context.Context, id, ownerID string) (chat.Conversation, error) {
	var (
		conversation         chat.Conversation
		msgs                 string
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, msgs, created_at, updated_at FROM chats WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(&conversation.ID, &conversation.OwnerID, &conversation.Title, &msgs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, storage.ErrChatNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("sqlite: select chat: %w", err)
	}

	turns, err := storage.DecodeTurns([]byte(msgs))
	if err != nil {
		return chat.Conversation{}, err
	}
	conversation.Turns = turns
	conversation.CreatedAt = time.UnixMilli(createdAt).UTC()
	conversation.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return conversation, nil
}

func (r *Repository) UpdateMessages(ctx context.Context, id string, turns []chat.Turn) error {
	msgs, err := storage.EncodeTurns(turns)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET msgs = ?, updated_at = ? WHERE id = ?`,
		string(msgs), r.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update msgs: %w", err)
	}
	return requireRow(res, storage.ErrChatNotFound)
}

func (r *Repository) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, r.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update title: %w", err)
	}
	return requireRow(res, storage.ErrChatNotFound)
}

func (r *Repository) ListChats(ctx context.Context, ownerID string) ([]chat.Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, updated_at FROM chats WHERE owner_id = ? ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list chats: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.Summary, 0)
	for rows.Next() {
		var (
			summary   chat.Summary
			updatedAt int64
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan chat: %w", err)
		}
		summary.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var (
		p         profile.Profile
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, level, created_at FROM users WHERE id = ?`, userID,
	).Scan(&p.ID, &p.Name, &p.Level, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, storage.ErrProfileNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("sqlite: select profile: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return p, nil
}

func (r *Repository) CreateProfile(ctx context.Context, p profile.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, level, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Level, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert profile: %w", err)
	}
	return requireRow(res, storage.ErrProfileExists)
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
