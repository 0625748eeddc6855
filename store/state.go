package store

import (
	"chatdesk/model"
)

// DefaultMaxMessages is the number of persisted messages kept in memory per conversation
const DefaultMaxMessages = 100

// URLStatus tracks the fetch progress of one URL
type URLStatus string

const (
	URLFetching URLStatus = "fetching"
	URLFetched  URLStatus = "fetched"
)

// ToolCallStatus is the lifecycle state of a streaming tool call
type ToolCallStatus string

const (
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// StreamingToolCall is a tool invocation observed during the in-progress turn.
//
// ContentBefore and ReasoningBefore snapshot the accumulators at the moment the
// call started; their lengths are the cut points used by Timeline.
type StreamingToolCall struct {
	ID              string
	ToolName        string
	ToolInput       string
	ToolOutput      string
	Status          ToolCallStatus
	Order           int
	ContentBefore   string
	ReasoningBefore string
}

// ConversationState is the observable runtime state of one conversation.
// Values returned by the Store are copies; mutate only through Store methods.
type ConversationState struct {
	Messages  []model.Message
	IsLoading bool
	LoadError string

	IsStreaming               bool
	IsWaitingForAI            bool
	StreamingContent          string
	StreamingReasoningContent string
	IsReasoningActive         bool

	AttachmentStatus     model.AttachmentStatus
	AttachmentRefreshKey uint64

	URLStatuses            map[string]map[string]URLStatus // message id -> url -> status
	PendingSearchDecisions map[string]bool                 // message id -> deciding
	StreamingToolCalls     map[string]StreamingToolCall    // tool call id -> call

	APIError string
}

// Phase is the position of a conversation in the turn state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseStreaming
	PhaseToolRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseStreaming:
		return "streaming"
	case PhaseToolRunning:
		return "tool_running"
	default:
		return "idle"
	}
}

func newConversationState() ConversationState {
	return ConversationState{
		AttachmentStatus:       model.AttachmentIdle,
		URLStatuses:            make(map[string]map[string]URLStatus),
		PendingSearchDecisions: make(map[string]bool),
		StreamingToolCalls:     make(map[string]StreamingToolCall),
	}
}

// Phase derives the turn phase from the flags
func (s ConversationState) Phase() Phase {
	switch {
	case !s.IsStreaming:
		return PhaseIdle
	case s.IsWaitingForAI:
		return PhaseWaiting
	}
	for _, tc := range s.StreamingToolCalls {
		if tc.Status == ToolCallRunning {
			return PhaseToolRunning
		}
	}
	return PhaseStreaming
}

func (s ConversationState) clone() ConversationState {
	out := s

	if s.Messages != nil {
		out.Messages = make([]model.Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.Clone()
		}
	}

	out.URLStatuses = make(map[string]map[string]URLStatus, len(s.URLStatuses))
	for msgID, urls := range s.URLStatuses {
		inner := make(map[string]URLStatus, len(urls))
		for u, st := range urls {
			inner[u] = st
		}
		out.URLStatuses[msgID] = inner
	}

	out.PendingSearchDecisions = make(map[string]bool, len(s.PendingSearchDecisions))
	for k, v := range s.PendingSearchDecisions {
		out.PendingSearchDecisions[k] = v
	}

	out.StreamingToolCalls = make(map[string]StreamingToolCall, len(s.StreamingToolCalls))
	for k, v := range s.StreamingToolCalls {
		out.StreamingToolCalls[k] = v
	}

	return out
}
