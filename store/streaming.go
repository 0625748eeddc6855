package store

import (
	"chatdesk/model"
)

// SetStreamingContent replaces the content accumulator. Setting it to ""
// also clears the reasoning accumulator.
func (s *Store) SetStreamingContent(id, content string) {
	s.mutate(id, func(c *conversation) {
		setStreamingContent(&c.state, content)
	})
}

func setStreamingContent(st *ConversationState, content string) {
	st.StreamingContent = content
	if content == "" {
		st.StreamingReasoningContent = ""
	}
}

// SetStreamingReasoningContent replaces the reasoning accumulator. Non-empty
// content is ignored unless the conversation is streaming.
func (s *Store) SetStreamingReasoningContent(id, content string) {
	s.mutate(id, func(c *conversation) {
		if content != "" && !c.state.IsStreaming {
			return
		}
		c.state.StreamingReasoningContent = content
	})
}

// SetIsStreaming sets the streaming flag. Turning it off also ends the
// reasoning channel.
func (s *Store) SetIsStreaming(id string, streaming bool) {
	s.mutate(id, func(c *conversation) {
		setIsStreaming(&c.state, streaming)
	})
}

func setIsStreaming(st *ConversationState, streaming bool) {
	st.IsStreaming = streaming
	if !streaming {
		st.IsReasoningActive = false
		st.StreamingReasoningContent = ""
	}
}

// SetIsWaitingForAI sets the waiting flag
func (s *Store) SetIsWaitingForAI(id string, waiting bool) {
	s.mutate(id, func(c *conversation) {
		c.state.IsWaitingForAI = waiting
	})
}

// SetIsReasoningActive sets the reasoning flag. It stays false outside a
// streaming turn.
func (s *Store) SetIsReasoningActive(id string, active bool) {
	s.mutate(id, func(c *conversation) {
		c.state.IsReasoningActive = active && c.state.IsStreaming
	})
}

// AppendStreamingChunk queues text for the content accumulator
func (s *Store) AppendStreamingChunk(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendChunk(s.throttles[channelContent], s.conv(id), text)
}

// AppendStreamingReasoningChunk queues text for the reasoning accumulator
func (s *Store) AppendStreamingReasoningChunk(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendChunk(s.throttles[channelReasoning], s.conv(id), text)
}

// AddMessage inserts msg, or replaces the message with the same id in place.
// Non-user messages count as output and clear the waiting flag.
func (s *Store) AddMessage(id string, msg model.Message) {
	s.mutate(id, func(c *conversation) {
		s.addMessageLocked(c, msg)
	})
}

func (s *Store) addMessageLocked(c *conversation, msg model.Message) {
	msg = msg.Clone()
	replaced := false
	for i := range c.state.Messages {
		if c.state.Messages[i].ID == msg.ID {
			c.state.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		c.state.Messages = append(c.state.Messages, msg)
		c.state.Messages = s.tail(c.state.Messages)
	}
	if msg.Role != model.RoleUser {
		c.state.IsWaitingForAI = false
	}
}

// SetMessages replaces the message list, keeping only the most recent ones
func (s *Store) SetMessages(id string, msgs []model.Message) {
	s.mutate(id, func(c *conversation) {
		s.setMessagesLocked(c, msgs)
	})
}

func (s *Store) setMessagesLocked(c *conversation, msgs []model.Message) {
	kept := s.tail(msgs)
	out := make([]model.Message, len(kept))
	for i, m := range kept {
		out[i] = m.Clone()
	}
	c.state.Messages = out
}

// tail returns the most recent maxMessages entries
func (s *Store) tail(msgs []model.Message) []model.Message {
	if len(msgs) <= s.maxMessages {
		return msgs
	}
	return msgs[len(msgs)-s.maxMessages:]
}

// beginTurnLocked moves c into the waiting phase of a new turn
func (s *Store) beginTurnLocked(c *conversation) {
	s.cleanupThrottleLocked(c)
	c.stopping = false
	c.state.APIError = ""
	c.state.StreamingToolCalls = make(map[string]StreamingToolCall)
	setStreamingContent(&c.state, "")
	c.state.IsReasoningActive = false
	c.state.IsStreaming = true
	c.state.IsWaitingForAI = true
}

// settleTurnLocked ends the turn of c after a terminal event
func (s *Store) settleTurnLocked(c *conversation) {
	s.cleanupThrottleLocked(c)
	c.stopping = false
	setIsStreaming(&c.state, false)
	setStreamingContent(&c.state, "")
	c.state.IsWaitingForAI = false
	c.state.StreamingToolCalls = make(map[string]StreamingToolCall)
	delete(s.sending, c.id)
}
