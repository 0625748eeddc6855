package store

import (
	"chatdesk/model"
)

// Apply routes one backend event to the matching mutation. Events for a
// conversation whose stop was requested are dropped until the turn settles,
// except for terminal events and persisted messages.
func (s *Store) Apply(ev model.Event) {
	id := ev.Conversation()
	if id == "" {
		s.log.Warn().Type("event", ev).Msg("event without conversation id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(id)

	switch e := ev.(type) {
	case model.TurnStarted:
		s.beginTurnLocked(c)
		if e.UserMessage.ID != "" {
			s.addMessageLocked(c, e.UserMessage)
		}
		s.sending[id] = true

	case model.ContentChunk:
		if c.stopping || e.Text == "" {
			return
		}
		s.appendChunk(s.throttles[channelContent], c, e.Text)

	case model.ReasoningChunk:
		if c.stopping || e.Text == "" || !c.state.IsStreaming {
			return
		}
		c.state.IsReasoningActive = true
		s.appendChunk(s.throttles[channelReasoning], c, e.Text)

	case model.ToolCallStarted:
		if c.stopping {
			return
		}
		s.addToolCallLocked(c, e.ToolCallID, e.ToolName, e.Input)

	case model.ToolCallFinished:
		status := ToolCallSuccess
		if e.IsError {
			status = ToolCallError
		}
		finishToolCall(&c.state, e.ToolCallID, e.Output, status)

	case model.URLFetchStarted:
		setURLStatuses(&c.state, e.MessageID, e.URLs)

	case model.URLFetched:
		markURLFetched(&c.state, e.MessageID, e.URL)

	case model.SearchDecision:
		setPendingSearchDecision(&c.state, e.MessageID, e.Pending)

	case model.AttachmentStatusChanged:
		c.state.AttachmentStatus = e.Status

	case model.AttachmentsUpdated:
		c.state.AttachmentRefreshKey++

	case model.MessageComplete:
		s.addMessageLocked(c, e.Message)
		if e.Message.Role == model.RoleAssistant {
			s.settleTurnLocked(c)
			delete(c.state.URLStatuses, e.Message.ID)
			delete(c.state.PendingSearchDecisions, e.Message.ID)
		}

	case model.TurnError:
		s.setAPIErrorLocked(c, e.Message)
		c.state.StreamingToolCalls = make(map[string]StreamingToolCall)
		c.state.PendingSearchDecisions = make(map[string]bool)
		s.log.Debug().Str("conversation", id).Str("error", e.Message).Msg("turn failed")

	case model.TurnCancelled:
		s.settleTurnLocked(c)
		c.state.PendingSearchDecisions = make(map[string]bool)

	default:
		s.log.Warn().Type("event", ev).Msg("unhandled event")
		return
	}

	s.notify(id)
}
