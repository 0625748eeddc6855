package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chatdesk/model"
)

const messageColumns = `id, conversation_id, role, content, reasoning_content, tool_calls, attachments, tool_call_id, created_at`

// SaveMessage inserts msg or updates the stored message with the same id.
// Missing ids and timestamps are filled in on the returned copy.
func (s *Storage) SaveMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	toolCalls, err := json.Marshal(orEmpty(msg.ToolCalls))
	if err != nil {
		return msg, fmt.Errorf("failed to encode tool calls: %w", err)
	}
	attachments, err := json.Marshal(orEmpty(msg.Attachments))
	if err != nil {
		return msg, fmt.Errorf("failed to encode attachments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return msg, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now(), msg.ConversationID)
	if err != nil {
		return msg, fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return msg, ErrConversationNotFound
	}

	// ON CONFLICT keeps the rowid, which breaks created_at ties in ListMessages
	_, err = tx.ExecContext(ctx, `
	INSERT INTO messages (`+messageColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		role = excluded.role,
		content = excluded.content,
		reasoning_content = excluded.reasoning_content,
		tool_calls = excluded.tool_calls,
		attachments = excluded.attachments,
		tool_call_id = excluded.tool_call_id`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.ReasoningContent,
		string(toolCalls), string(attachments), msg.ToolCallID, msg.Timestamp,
	)
	if err != nil {
		return msg, fmt.Errorf("failed to save message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return msg, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ListMessages returns the messages of a conversation in chronological order
func (s *Storage) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT `+messageColumns+`
	FROM messages
	WHERE conversation_id = ?
	ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m                      model.Message
			role                   string
			toolCalls, attachments string
		)
		err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.ReasoningContent,
			&toolCalls, &attachments, &m.ToolCallID, &m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to decode tool calls of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of %s: %w", m.ID, err)
		}
		if len(m.ToolCalls) == 0 {
			m.ToolCalls = nil
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearMessages deletes every message of a conversation, keeping the conversation
func (s *Storage) ClearMessages(ctx context.Context, conversationID string) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// MessageMatch is a search hit
type MessageMatch struct {
	ConversationID    string     `json:"conversation_id"`
	ConversationTitle string     `json:"conversation_title"`
	MessageID         string     `json:"message_id"`
	Role              model.Role `json:"role"`
	Preview           string     `json:"preview"`
}

// SearchMessages finds user and assistant messages containing query, case-insensitively
func (s *Storage) SearchMessages(ctx context.Context, query string) ([]MessageMatch, error) {
	if strings.TrimSpace(query) == "" {
		return []MessageMatch{}, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
	SELECT m.conversation_id, c.title, m.id, m.role, m.content
	FROM messages m JOIN conversations c ON c.id = m.conversation_id
	WHERE m.role IN ('user', 'assistant') AND lower(m.content) LIKE ? ESCAPE '\'
	ORDER BY m.created_at DESC, m.rowid DESC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	matches := []MessageMatch{}
	for rows.Next() {
		var (
			mm            MessageMatch
			role, content string
		)
		if err := rows.Scan(&mm.ConversationID, &mm.ConversationTitle, &mm.MessageID, &role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		mm.Role = model.Role(role)
		mm.Preview = preview(content, 100)
		matches = append(matches, mm)
	}
	return matches, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
