package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatdesk/model"
	"chatdesk/storage"
	"chatdesk/store"
)

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListConversations(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list conversations")
		Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if list == nil {
		list = []storage.Conversation{}
	}
	JSON(w, http.StatusOK, list)
}

// conversation loads the {id} route parameter, writing the error response on failure
func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*storage.Conversation, bool) {
	id := chi.URLParam(r, "id")
	c, err := h.storage.GetConversation(r.Context(), id)
	if errors.Is(err, storage.ErrConversationNotFound) {
		Error(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation", id).Msg("failed to load conversation")
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	return c, true
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, c)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	msgs, err := h.storage.ListMessages(r.Context(), c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation", c.ID).Msg("failed to list messages")
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.SanitizeFilename(c.Title)+".json"))
	if err := h.storage.ExportConversation(r.Context(), c.ID, w); err != nil {
		h.log.Error().Err(err).Str("conversation", c.ID).Msg("export failed")
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	matches, err := h.storage.SearchMessages(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error().Err(err).Msg("search failed")
		Error(w, http.StatusInternalServerError, "search failed")
		return
	}
	JSON(w, http.StatusOK, matches)
}

type toolCallView struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Input  string               `json:"input"`
	Output string               `json:"output,omitempty"`
	Status store.ToolCallStatus `json:"status"`
}

type segmentView struct {
	Kind     string        `json:"kind"`
	Text     string        `json:"text,omitempty"`
	ToolCall *toolCallView `json:"tool_call,omitempty"`
}

type stateView struct {
	ConversationID            string                                `json:"conversation_id"`
	Phase                     string                                `json:"phase"`
	IsStreaming               bool                                  `json:"is_streaming"`
	IsWaitingForAI            bool                                  `json:"is_waiting_for_ai"`
	IsReasoningActive         bool                                  `json:"is_reasoning_active"`
	StreamingContent          string                                `json:"streaming_content"`
	StreamingReasoningContent string                                `json:"streaming_reasoning_content"`
	AttachmentStatus          model.AttachmentStatus                `json:"attachment_status"`
	URLStatuses               map[string]map[string]store.URLStatus `json:"url_statuses"`
	PendingSearchDecisions    map[string]bool                       `json:"pending_search_decisions"`
	APIError                  string                                `json:"api_error,omitempty"`
	MessageCount              int                                   `json:"message_count"`
	Timeline                  []segmentView                         `json:"timeline"`
}

func toolView(tc store.StreamingToolCall) *toolCallView {
	return &toolCallView{ID: tc.ID, Name: tc.ToolName, Input: tc.ToolInput, Output: tc.ToolOutput, Status: tc.Status}
}

func segmentKind(k store.SegmentKind) string {
	switch k {
	case store.SegmentReasoning:
		return "reasoning"
	case store.SegmentToolCall:
		return "tool_call"
	default:
		return "text"
	}
}

// GetState reports the in-memory runtime state of a conversation
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}

	st := h.store.GetConversationState(c.ID)
	view := stateView{
		ConversationID:            c.ID,
		Phase:                     st.Phase().String(),
		IsStreaming:               st.IsStreaming,
		IsWaitingForAI:            st.IsWaitingForAI,
		IsReasoningActive:         st.IsReasoningActive,
		StreamingContent:          st.StreamingContent,
		StreamingReasoningContent: st.StreamingReasoningContent,
		AttachmentStatus:          st.AttachmentStatus,
		URLStatuses:               st.URLStatuses,
		PendingSearchDecisions:    st.PendingSearchDecisions,
		APIError:                  st.APIError,
		MessageCount:              len(st.Messages),
		Timeline:                  []segmentView{},
	}
	for _, seg := range store.BuildTimeline(st.StreamingContent, st.StreamingReasoningContent, st.StreamingToolCalls) {
		sv := segmentView{Kind: segmentKind(seg.Kind), Text: seg.Text}
		if seg.Kind == store.SegmentToolCall {
			sv.ToolCall = toolView(seg.ToolCall)
		}
		view.Timeline = append(view.Timeline, sv)
	}
	JSON(w, http.StatusOK, view)
}
