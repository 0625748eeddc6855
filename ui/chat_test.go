package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/store"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []model.SendRequest
	stopped  []string
	sendErr  error
}

func (b *fakeBackend) Send(ctx context.Context, req model.SendRequest) (model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.sendErr != nil {
		return model.Message{}, b.sendErr
	}
	id := req.ConversationID
	if id == "" {
		id = "c1"
	}
	return model.Message{ID: "u1", ConversationID: id, Role: model.RoleUser, Content: req.Content, Timestamp: time.Now()}, nil
}

func (b *fakeBackend) Stop(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = append(b.stopped, id)
	return nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	return []model.Message{{ID: "old", ConversationID: id, Role: model.RoleAssistant, Content: "earlier reply"}}, nil
}

func (b *fakeBackend) ClearMessages(ctx context.Context, id string) error { return nil }

func newTestView(t *testing.T, b *fakeBackend, conversationID string) (ChatView, *store.Store, chan model.Event) {
	t.Helper()
	st := store.New(b)
	events := make(chan model.Event, 16)
	v := NewChatView(Options{
		Store:          st,
		Events:         events,
		Config:         &config.Config{Streaming: config.StreamingConfig{HistoryLimit: 7}},
		ConversationID: conversationID,
		Provider:       "ollama",
		Model:          "llama3.1",
	})
	m, _ := v.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m.(ChatView), st, events
}

func update(t *testing.T, v ChatView, msg tea.Msg) (ChatView, tea.Cmd) {
	t.Helper()
	m, cmd := v.Update(msg)
	return m.(ChatView), cmd
}

func typeAndSend(t *testing.T, v ChatView, text string) (ChatView, tea.Cmd) {
	t.Helper()
	v.textarea.SetValue(text)
	return update(t, v, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSendBuildsRequest(t *testing.T) {
	b := &fakeBackend{}
	v, _, _ := newTestView(t, b, "")

	v, cmd := typeAndSend(t, v, "/attach notes.txt")
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"notes.txt"}, v.attachments)

	v, _ = typeAndSend(t, v, "/search")
	assert.True(t, v.searchEnabled)

	v, cmd = typeAndSend(t, v, "What is in my notes?")
	require.NotNil(t, cmd)
	assert.Empty(t, v.textarea.Value())
	assert.Nil(t, v.attachments)
	assert.Equal(t, "What is in my notes?", v.title)

	_, again := typeAndSend(t, v, "second")
	assert.Nil(t, again, "no second send while one is in flight")

	result := cmd()
	require.Len(t, b.requests, 1)
	req := b.requests[0]
	assert.Equal(t, "What is in my notes?", req.Content)
	assert.Equal(t, []string{"notes.txt"}, req.Attachments)
	assert.True(t, req.SearchEnabled)
	assert.Equal(t, 7, req.HistoryLimit)
	assert.Equal(t, "ollama", req.Provider)

	v, _ = update(t, v, result)
	assert.Equal(t, "c1", v.ConversationID())
	assert.False(t, v.pending)
}

func TestSendErrorIsShown(t *testing.T) {
	b := &fakeBackend{sendErr: errors.New("provider \"openai\" is disabled")}
	v, st, _ := newTestView(t, b, "c9")

	v, cmd := typeAndSend(t, v, "hi")
	require.NotNil(t, cmd)
	v, _ = update(t, v, cmd())

	assert.Contains(t, v.status, "disabled")
	state := st.GetConversationState("c9")
	assert.False(t, state.IsStreaming)
	assert.Contains(t, state.APIError, "disabled")
	assert.Contains(t, v.View(), "disabled")
}

func TestBackendEventsReachTheStore(t *testing.T) {
	b := &fakeBackend{}
	v, st, _ := newTestView(t, b, "")

	v, cmd := update(t, v, backendEventMsg{event: model.TurnStarted{
		ConversationID:     "c2",
		UserMessage:        model.Message{ID: "u1", ConversationID: "c2", Role: model.RoleUser, Content: "weather?"},
		AssistantMessageID: "a1",
	}})
	assert.NotNil(t, cmd, "keeps listening")
	assert.Equal(t, "c2", v.ConversationID())
	assert.Equal(t, store.PhaseWaiting, st.Phase("c2"))

	v, _ = update(t, v, backendEventMsg{event: model.ToolCallStarted{ConversationID: "c2", ToolCallID: "t1", ToolName: "weather__forecast", Input: "{}"}})
	assert.Equal(t, store.PhaseToolRunning, st.Phase("c2"))
	v, _ = update(t, v, storeChangedMsg{conversationID: "c2"})
	assert.Contains(t, v.View(), "weather__forecast")

	v, _ = update(t, v, backendEventMsg{event: model.MessageComplete{
		ConversationID: "c2",
		Message:        model.Message{ID: "a1", ConversationID: "c2", Role: model.RoleAssistant, Content: "Sunny all week"},
	}})
	assert.Equal(t, store.PhaseIdle, st.Phase("c2"))
	v, _ = update(t, v, storeChangedMsg{conversationID: "c2"})
	assert.Contains(t, v.View(), "Sunny all week")
	assert.Equal(t, "Sunny all week", v.lastReply())
}

func TestListenForEvents(t *testing.T) {
	events := make(chan model.Event, 1)
	events <- model.TurnCancelled{ConversationID: "c"}

	msg := ListenForEvents(events)()
	assert.Equal(t, backendEventMsg{event: model.TurnCancelled{ConversationID: "c"}}, msg)

	close(events)
	assert.Equal(t, eventsClosedMsg{}, ListenForEvents(events)())
}

func TestStopAndQuitKeys(t *testing.T) {
	b := &fakeBackend{}
	v, st, _ := newTestView(t, b, "c3")

	_, cmd := update(t, v, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd, "nothing to stop while idle")

	st.Apply(model.TurnStarted{ConversationID: "c3", AssistantMessageID: "a1"})
	_, cmd = update(t, v, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	assert.Equal(t, actionDoneMsg{status: "Stopped"}, cmd())
	assert.Equal(t, []string{"c3"}, b.stopped)

	_, cmd = update(t, v, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestResumeLoadsMessages(t *testing.T) {
	b := &fakeBackend{}
	v, st, _ := newTestView(t, b, "c4")

	v.loadMessages()()
	v, _ = update(t, v, storeChangedMsg{conversationID: "c4"})
	require.Len(t, st.GetConversationState("c4").Messages, 1)
	assert.Contains(t, v.View(), "earlier reply")
}

func TestFormatFooter(t *testing.T) {
	out := FormatFooter("Enter", "Send", "Ctrl+C")
	assert.Contains(t, out, "Enter")
	assert.Contains(t, out, "Send")
	assert.NotContains(t, out, "Ctrl+C", "dangling key without description is dropped")
}

func TestSendBlockedUntilStoppedTurnSettles(t *testing.T) {
	b := &fakeBackend{}
	v, st, _ := newTestView(t, b, "c5")

	st.Apply(model.TurnStarted{ConversationID: "c5", AssistantMessageID: "a1"})
	st.Apply(model.ContentChunk{ConversationID: "c5", Text: "partial"})
	st.StopGeneration(context.Background(), "c5")
	require.False(t, st.IsSending("c5"))

	v, cmd := typeAndSend(t, v, "next")
	assert.Nil(t, cmd)
	assert.Contains(t, v.status, "Wait")
	assert.Empty(t, b.requests)

	// a send rejected by the store keeps the unsettled turn intact
	_, err := st.SendMessage(context.Background(), model.SendRequest{ConversationID: "c5", Content: "next"})
	require.ErrorIs(t, err, store.ErrTurnActive)
	v, _ = update(t, v, sendResultMsg{err: err})

	state := st.GetConversationState("c5")
	assert.True(t, state.IsStreaming)
	assert.Empty(t, state.APIError)
	assert.Equal(t, "partial", state.StreamingContent)
	assert.Contains(t, v.status, "not finished")
}
