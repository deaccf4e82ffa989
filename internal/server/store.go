// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// ErrChatNotFound is returned for an unknown chat id.
var ErrChatNotFound = errors.New("chat not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chats (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL DEFAULT '',
    system_prompt  TEXT NOT NULL DEFAULT '',
    has_attachment INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at);

CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id    TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);
`

// =============================================================================
// TYPES
// =============================================================================

// Chat is a stored conversation.
type Chat struct {
	ID            string
	Title         string
	SystemPrompt  string
	HasAttachment bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	MessageCount  int
}

// StoredMessage is one message of a chat. Role is "user" or "assistant".
type StoredMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store persists chats and their messages in SQLite.
//
// The Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (or creates) the database at path. ":memory:" opens a
// private in-memory database.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps the pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateChat inserts an empty chat with a time-ordered id.
func (s *Store) CreateChat(ctx context.Context) (*Chat, error) {
	now := s.now().UTC()
	chat := &Chat{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, created_at, updated_at) VALUES (?, ?, ?)`,
		chat.ID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// ListChats returns every chat, most recently updated first.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.system_prompt, c.has_attachment, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		ORDER BY c.updated_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// GetChat returns one chat.
func (s *Store) GetChat(ctx context.Context, id string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.title, c.system_prompt, c.has_attachment, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c WHERE c.id = ?`, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return c, err
}

// Messages returns the messages of a chat in order.
func (s *Store) Messages(ctx context.Context, id string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE chat_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	msgs := []StoredMessage{}
	for rows.Next() {
		var m StoredMessage
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("load messages: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

// AppendExchange stores a question and its answer and bumps the chat's
// updated time.
func (s *Store) AppendExchange(ctx context.Context, id, question, answer string) error {
	now := formatTime(s.now().UTC())
	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrChatNotFound, id)
		}
		for _, m := range []StoredMessage{{Role: "user", Content: question}, {Role: "assistant", Content: answer}} {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
				id, m.Role, m.Content, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SetSystemPrompt fixes the chat's system prompt. It only takes effect the
// first time; later calls leave the stored prompt alone and report false.
func (s *Store) SetSystemPrompt(ctx context.Context, id, prompt string, hasAttachment bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET system_prompt = ?, has_attachment = ? WHERE id = ? AND system_prompt = ''`,
		prompt, boolInt(hasAttachment), id)
	if err != nil {
		return false, fmt.Errorf("set system prompt: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReplaceSystemPrompt overwrites the prompt of a chat that switches to a new
// study document.
func (s *Store) ReplaceSystemPrompt(ctx context.Context, id, prompt string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET system_prompt = ?, has_attachment = 1 WHERE id = ?`, prompt, id)
	if err != nil {
		return fmt.Errorf("replace system prompt: %w", err)
	}
	return nil
}

// SetTitle sets the chat title if it has none yet.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET title = ? WHERE id = ? AND title = ''`, title, id)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrChatNotFound, id)
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (*Chat, error) {
	var c Chat
	var hasAttachment int
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Title, &c.SystemPrompt, &hasAttachment, &createdAt, &updatedAt, &c.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	c.HasAttachment = hasAttachment != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
