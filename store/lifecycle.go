package store

import (
	"context"
	"errors"
	"fmt"

	"chatdesk/model"
)

// ErrNoBackend is returned by actions that need a backend when none was configured
var ErrNoBackend = errors.New("store has no backend")

// ErrTurnActive is returned by SendMessage while the conversation's previous
// turn, stopped or not, has not settled yet
var ErrTurnActive = errors.New("previous reply has not finished")

// Backend is the process that talks to model providers and persistence.
// Assistant output arrives separately as events passed to Apply.
type Backend interface {
	Send(ctx context.Context, req model.SendRequest) (model.Message, error)
	Stop(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	ClearMessages(ctx context.Context, conversationID string) error
}

// GlobalStatus is the state not tied to one conversation
type GlobalStatus struct {
	IsSending bool
	Error     string
}

// Status returns the global sending flag and last send error
func (s *Store) Status() GlobalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GlobalStatus{IsSending: len(s.sending) > 0, Error: s.lastError}
}

// IsSending reports whether a send is outstanding for id
func (s *Store) IsSending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending[id]
}

// ClearError clears the global send error
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// SendMessage asks the backend to start a turn and returns the persisted user
// message. A known conversation enters the waiting phase before the backend is
// called so that early events land on a prepared state. A conversation still
// streaming is left untouched and ErrTurnActive is returned without calling the
// backend. On any other failure the global error is set, the sending flag is
// reset and the error is returned; the conversation's streaming flags are left
// for the caller to settle via SetAPIError.
func (s *Store) SendMessage(ctx context.Context, req model.SendRequest) (model.Message, error) {
	if s.backend == nil {
		return model.Message{}, ErrNoBackend
	}

	s.mu.Lock()
	s.lastError = ""
	if req.ConversationID != "" {
		c := s.conv(req.ConversationID)
		if c.state.IsStreaming {
			s.lastError = ErrTurnActive.Error()
			s.notify(req.ConversationID)
			s.mu.Unlock()
			return model.Message{}, fmt.Errorf("send message: %w", ErrTurnActive)
		}
		s.beginTurnLocked(c)
		s.sending[req.ConversationID] = true
		s.notify(req.ConversationID)
	}
	s.mu.Unlock()

	msg, err := s.backend.Send(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastError = err.Error()
		delete(s.sending, req.ConversationID)
		s.log.Error().Err(err).Str("conversation", req.ConversationID).Msg("send failed")
		if req.ConversationID != "" {
			s.notify(req.ConversationID)
		}
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}

	if msg.ConversationID != "" {
		c := s.conv(msg.ConversationID)
		s.addMessageLocked(c, msg)
		if c.state.IsStreaming {
			s.sending[msg.ConversationID] = true
		}
		s.notify(msg.ConversationID)
	}
	return msg, nil
}

// StopGeneration asks the backend to cancel the turn of id. The sending flag
// is reset whatever the backend answers. Content produced so far, including
// chunks still buffered, stays visible until a terminal event arrives; chunk
// and tool-call events received in the meantime are dropped.
func (s *Store) StopGeneration(ctx context.Context, id string) {
	var err error
	if s.backend != nil {
		err = s.backend.Stop(ctx, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("conversation", id).Msg("stop generation failed")
	}
	delete(s.sending, id)
	c := s.conv(id)
	s.flushAllLocked(c)
	s.cleanupThrottleLocked(c)
	if c.state.IsStreaming {
		c.stopping = true
	}
	s.notify(id)
}

// LoadMessages fetches the persisted messages of id and keeps the most recent
// ones. On failure the message list is left untouched and LoadError is set.
func (s *Store) LoadMessages(ctx context.Context, id string) {
	if s.backend == nil {
		s.mutate(id, func(c *conversation) { c.state.LoadError = ErrNoBackend.Error() })
		return
	}

	s.mutate(id, func(c *conversation) {
		c.state.IsLoading = true
		c.state.LoadError = ""
	})

	msgs, err := s.backend.ListMessages(ctx, id)

	s.mutate(id, func(c *conversation) {
		c.state.IsLoading = false
		if err != nil {
			c.state.LoadError = err.Error()
			s.log.Error().Err(err).Str("conversation", id).Msg("load messages failed")
			return
		}
		s.setMessagesLocked(c, msgs)
	})
}

// ClearMessages deletes the persisted messages of id and empties the list.
// On failure the list is left untouched and LoadError is set.
func (s *Store) ClearMessages(ctx context.Context, id string) {
	if s.backend == nil {
		s.mutate(id, func(c *conversation) { c.state.LoadError = ErrNoBackend.Error() })
		return
	}

	err := s.backend.ClearMessages(ctx, id)

	s.mutate(id, func(c *conversation) {
		if err != nil {
			c.state.LoadError = err.Error()
			s.log.Error().Err(err).Str("conversation", id).Msg("clear messages failed")
			return
		}
		c.state.LoadError = ""
		c.state.Messages = nil
	})
}

// SetAPIError aborts the turn of id: the error is recorded and streaming,
// waiting and partial content are all cleared together.
func (s *Store) SetAPIError(id, message string) {
	s.mutate(id, func(c *conversation) {
		s.setAPIErrorLocked(c, message)
	})
}

func (s *Store) setAPIErrorLocked(c *conversation, message string) {
	s.cleanupThrottleLocked(c)
	c.stopping = false
	c.state.APIError = message
	setIsStreaming(&c.state, false)
	c.state.IsWaitingForAI = false
	setStreamingContent(&c.state, "")
	delete(s.sending, c.id)
}

// ClearAPIError clears the turn error without touching streaming flags
func (s *Store) ClearAPIError(id string) {
	s.mutate(id, func(c *conversation) {
		c.state.APIError = ""
	})
}

// CleanupConversation resets the ephemeral state of id while keeping its
// messages: timers are cancelled, accumulators emptied, flags cleared and the
// attachment status returned to idle. Idempotent.
func (s *Store) CleanupConversation(id string) {
	s.mutate(id, func(c *conversation) {
		s.cleanupThrottleLocked(c)
		c.stopping = false
		setStreamingContent(&c.state, "")
		setIsStreaming(&c.state, false)
		c.state.IsWaitingForAI = false
		c.state.AttachmentStatus = model.AttachmentIdle
	})
}

// SetAttachmentStatus records attachment processing progress
func (s *Store) SetAttachmentStatus(id string, status model.AttachmentStatus) {
	s.mutate(id, func(c *conversation) {
		c.state.AttachmentStatus = status
	})
}

// BumpAttachmentRefreshKey tells readers to re-fetch persisted attachment data
func (s *Store) BumpAttachmentRefreshKey(id string) {
	s.mutate(id, func(c *conversation) {
		c.state.AttachmentRefreshKey++
	})
}
