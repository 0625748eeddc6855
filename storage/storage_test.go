package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/model"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	c, err := s.CreateConversation(ctx, "First", "ollama", "llama3.1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "ollama", got.Provider)

	require.NoError(t, s.RenameConversation(ctx, c.ID, "Renamed"))
	require.NoError(t, s.TouchConversation(ctx, c.ID, "openai", "gpt-4o"))
	got, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "gpt-4o", got.Model)

	list, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteConversation(ctx, c.ID))
	_, err = s.GetConversation(ctx, c.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, c.ID), ErrConversationNotFound)
	assert.ErrorIs(t, s.RenameConversation(ctx, "nope", "x"), ErrConversationNotFound)
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a, err := s.CreateConversation(ctx, "a", "", "")
	require.NoError(t, err)
	b, err := s.CreateConversation(ctx, "b", "", "")
	require.NoError(t, err)

	_, err = s.SaveMessage(ctx, model.Message{ConversationID: a.ID, Role: model.RoleUser, Content: "bump"})
	require.NoError(t, err)

	list, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestSaveAndListMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)
	c, err := s.CreateConversation(ctx, "t", "", "")
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user, err := s.SaveMessage(ctx, model.Message{
		ConversationID: c.ID,
		Role:           model.RoleUser,
		Content:        "what's in notes.txt?",
		Attachments:    []model.Attachment{{Path: "/tmp/notes.txt", Name: "notes.txt", Size: 12}},
		Timestamp:      ts,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)

	assistant, err := s.SaveMessage(ctx, model.Message{
		ID:               "a1",
		ConversationID:   c.ID,
		Role:             model.RoleAssistant,
		Content:          "draft",
		ReasoningContent: "thinking",
		ToolCalls: []model.ToolCall{
			{ID: "t1", Name: "read_file", Arguments: map[string]any{"path": "notes.txt"}, Output: "hello"},
		},
		Timestamp: ts,
	})
	require.NoError(t, err)

	assistant.Content = "final"
	_, err = s.SaveMessage(ctx, assistant)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "notes.txt", msgs[0].Attachments[0].Name)
	assert.Nil(t, msgs[0].ToolCalls)

	assert.Equal(t, "a1", msgs[1].ID)
	assert.Equal(t, "final", msgs[1].Content)
	assert.Equal(t, "thinking", msgs[1].ReasoningContent)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "notes.txt", msgs[1].ToolCalls[0].Arguments["path"])
	assert.True(t, msgs[1].Timestamp.Equal(ts))
}

func TestMessagesRequireConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	_, err := s.SaveMessage(ctx, model.Message{ConversationID: "missing", Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = s.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	assert.ErrorIs(t, s.ClearMessages(ctx, "missing"), ErrConversationNotFound)
}

func TestClearMessagesKeepsConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)
	c, err := s.CreateConversation(ctx, "t", "", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.SaveMessage(ctx, model.Message{ConversationID: c.ID, Role: model.RoleUser, Content: "x"})
		require.NoError(t, err)
	}

	require.NoError(t, s.ClearMessages(ctx, c.ID))
	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.GetConversation(ctx, c.ID)
	assert.NoError(t, err)
}

func TestSearchMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)
	c, err := s.CreateConversation(ctx, "Go questions", "", "")
	require.NoError(t, err)

	for _, m := range []model.Message{
		{ConversationID: c.ID, Role: model.RoleSystem, Content: "Goroutines are cheap"},
		{ConversationID: c.ID, Role: model.RoleUser, Content: "How do goroutines work?"},
		{ConversationID: c.ID, Role: model.RoleAssistant, Content: "100% of the time, use channels"},
	} {
		_, err := s.SaveMessage(ctx, m)
		require.NoError(t, err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"GOROUTINES", 1},
		{"100%", 1},
		{"%", 1},
		{"_", 0},
		{"  ", 0},
		{"absent", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches, err := s.SearchMessages(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, matches, tt.want)
		})
	}

	matches, err := s.SearchMessages(ctx, "goroutines")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Go questions", matches[0].ConversationTitle)
	assert.Equal(t, model.RoleUser, matches[0].Role)
}

func TestExportConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)
	c, err := s.CreateConversation(ctx, "export me", "", "")
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, model.Message{ConversationID: c.ID, Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportConversation(ctx, c.ID, &buf))

	var doc Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "export me", doc.Conversation.Title)
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, "hi", doc.Messages[0].Content)

	assert.ErrorIs(t, s.ExportConversation(ctx, "missing", &buf), ErrConversationNotFound)
}

func TestReopenRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "re.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.columnExists("messages", "reasoning_content")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello\nworld", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"a very long first message that keeps going well past the limit", "a very long first message that keeps goi..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GenerateTitle(tt.in))
	}
	assert.Contains(t, GenerateTitle(""), "Conversation")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c", SanitizeFilename("a/b c"))
	assert.Equal(t, "conversation", SanitizeFilename("..."))
}

func TestFilterConversations(t *testing.T) {
	list := []Conversation{
		{ID: "1", Title: "Trip planning for June"},
		{ID: "2", Title: "Go generics question"},
		{ID: "3", Title: "Grocery list"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"trip", []string{"1"}},
		{"generics", []string{"2"}},
		{"zzz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ids := []string{}
			for _, c := range FilterConversations(list, tt.query) {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
