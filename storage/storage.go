package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrConversationNotFound is returned for unknown conversation ids
var ErrConversationNotFound = errors.New("conversation not found")

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage persists conversations and their messages in sqlite
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

func (s *Storage) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT NOT NULL DEFAULT '[]',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first schema
func (s *Storage) migrateSchema() error {
	migrations := []struct {
		table, column, ddl string
	}{
		{"messages", "reasoning_content", `ALTER TABLE messages ADD COLUMN reasoning_content TEXT NOT NULL DEFAULT ''`},
		{"messages", "tool_call_id", `ALTER TABLE messages ADD COLUMN tool_call_id TEXT NOT NULL DEFAULT ''`},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", m.column, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (s *Storage) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// CreateConversation inserts a new conversation with a fresh id
func (s *Storage) CreateConversation(ctx context.Context, title, provider, model string) (*Conversation, error) {
	now := s.now()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Provider:  provider,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO conversations (id, title, provider, model, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Provider, c.Model, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

func (s *Storage) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
	SELECT id, title, provider, model, created_at, updated_at
	FROM conversations
	WHERE id = ?`, id).Scan(&c.ID, &c.Title, &c.Provider, &c.Model, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return &c, nil
}

// ListConversations returns conversations, most recently updated first
func (s *Storage) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, title, provider, model, created_at, updated_at
	FROM conversations
	ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.Provider, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) RenameConversation(ctx context.Context, id, title string) error {
	return s.updateConversation(ctx, id, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, s.now(), id)
}

// TouchConversation records the provider and model of the latest turn
func (s *Storage) TouchConversation(ctx context.Context, id, provider, model string) error {
	return s.updateConversation(ctx, id,
		`UPDATE conversations SET provider = ?, model = ?, updated_at = ? WHERE id = ?`,
		provider, model, s.now(), id)
}

func (s *Storage) updateConversation(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its messages
func (s *Storage) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GenerateTitle derives a conversation title from the first user message
func GenerateTitle(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if name == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	runes := []rune(name)
	if len(runes) > 40 {
		name = strings.TrimSpace(string(runes[:40])) + "..."
	}
	return name
}
