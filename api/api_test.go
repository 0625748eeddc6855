package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/model"
	"chatdesk/storage"
	"chatdesk/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Storage, *store.Store) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	st := store.New(nil)
	srv := httptest.NewServer(NewRouter(NewHandler(s, st, zerolog.Nop())))
	t.Cleanup(srv.Close)
	return srv, s, st
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["is_sending"])
}

func TestConversationsAndMessages(t *testing.T) {
	ctx := context.Background()
	srv, s, _ := newTestServer(t)

	var list []storage.Conversation
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations", &list))
	assert.Empty(t, list)
	assert.NotNil(t, list)

	c, err := s.CreateConversation(ctx, "Trip planning", "ollama", "llama3.1")
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, model.Message{ConversationID: c.ID, Role: model.RoleUser, Content: "Where to in June?"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Trip planning", list[0].Title)

	var got storage.Conversation
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/"+c.ID, &got))
	assert.Equal(t, c.ID, got.ID)

	var msgs []model.Message
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/"+c.ID+"/messages", &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Where to in June?", msgs[0].Content)

	var matches []storage.MessageMatch
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/search?q=june", &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, c.ID, matches[0].ConversationID)

	var export storage.Export
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/"+c.ID+"/export", &export))
	assert.Equal(t, "Trip planning", export.Conversation.Title)
	assert.Len(t, export.Messages, 1)
}

func TestUnknownConversationIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"", "/messages", "/state", "/export"} {
		var body map[string]string
		assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/conversations/nope"+path, &body), path)
		assert.Equal(t, "conversation not found", body["error"])
	}
}

func TestState(t *testing.T) {
	ctx := context.Background()
	srv, s, st := newTestServer(t)

	c, err := s.CreateConversation(ctx, "t", "", "")
	require.NoError(t, err)

	var idle stateView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/"+c.ID+"/state", &idle))
	assert.Equal(t, "idle", idle.Phase)
	assert.Empty(t, idle.Timeline)

	st.Apply(model.TurnStarted{ConversationID: c.ID, UserMessage: model.Message{ID: "u1", Role: model.RoleUser, Content: "hi"}, AssistantMessageID: "a1"})
	st.Apply(model.ContentChunk{ConversationID: c.ID, Text: "Looking it up. "})
	st.Apply(model.ToolCallStarted{ConversationID: c.ID, ToolCallID: "call_1", ToolName: "web__search", Input: `{"q":"x"}`})

	var view stateView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/"+c.ID+"/state", &view))
	assert.Equal(t, "tool_running", view.Phase)
	assert.True(t, view.IsStreaming)
	assert.Equal(t, 1, view.MessageCount)
	assert.Equal(t, "Looking it up. ", view.StreamingContent)

	require.Len(t, view.Timeline, 2)
	assert.Equal(t, segmentView{Kind: "text", Text: "Looking it up. "}, view.Timeline[0])
	assert.Equal(t, "tool_call", view.Timeline[1].Kind)
	require.NotNil(t, view.Timeline[1].ToolCall)
	assert.Equal(t, "web__search", view.Timeline[1].ToolCall.Name)
	assert.Equal(t, store.ToolCallRunning, view.Timeline[1].ToolCall.Status)

	var health map[string]any
	getJSON(t, srv.URL+"/healthz", &health)
	assert.Equal(t, true, health["is_sending"])
}
