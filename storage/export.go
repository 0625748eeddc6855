package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"chatdesk/model"
)

// Export is the JSON document written by ExportConversation
type Export struct {
	Conversation Conversation    `json:"conversation"`
	Messages     []model.Message `json:"messages"`
}

// ExportConversation writes a conversation and all its messages as indented JSON
func (s *Storage) ExportConversation(ctx context.Context, id string, w io.Writer) error {
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Export{Conversation: *c, Messages: orEmpty(msgs)}); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// SanitizeFilename turns a title into a safe file name
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)

	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}

	if name == "" {
		name = "conversation"
	}
	return name
}
