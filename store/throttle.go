package store

import (
	"strings"
	"time"
)

// channel names an independent stream of chunks within a conversation
type channel string

const (
	channelContent   channel = "content"
	channelReasoning channel = "reasoning"
)

// throttle coalesces appends on one channel into at most one state mutation
// per delay window. The window starts at the first buffered chunk and is not
// extended by later ones. Reasoning text only lands while the turn is streaming.
type throttle struct {
	channel channel
	delay   time.Duration
	clock   Clock
	apply   func(st *ConversationState, text string)
}

// chunkBuffer is the per-conversation, per-channel pending state
type chunkBuffer struct {
	chunks    []string
	scheduled bool
	timer     Timer
	gen       uint64 // bumped on every flush/cleanup so stale timer callbacks can tell
}

func newThrottles(delay time.Duration, clock Clock) map[channel]*throttle {
	targets := map[channel]func(st *ConversationState, text string){
		channelContent: func(st *ConversationState, text string) {
			st.StreamingContent += text
		},
		channelReasoning: func(st *ConversationState, text string) {
			if st.IsStreaming {
				st.StreamingReasoningContent += text
			}
		},
	}

	out := make(map[channel]*throttle, len(targets))
	for ch, apply := range targets {
		out[ch] = &throttle{channel: ch, delay: delay, clock: clock, apply: apply}
	}
	return out
}

func (c *conversation) buffer(ch channel) *chunkBuffer {
	b, ok := c.buffers[ch]
	if !ok {
		b = &chunkBuffer{}
		c.buffers[ch] = b
	}
	return b
}

// appendChunk buffers text and schedules a flush if none is pending. Caller holds s.mu.
func (s *Store) appendChunk(t *throttle, c *conversation, text string) {
	b := c.buffer(t.channel)
	b.chunks = append(b.chunks, text)
	if b.scheduled {
		return
	}

	b.scheduled = true
	gen := b.gen
	b.timer = t.clock.AfterFunc(t.delay, func() {
		s.flushFromTimer(t, c, gen)
	})
}

func (s *Store) flushFromTimer(t *throttle, c *conversation, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.removed || s.conversations[c.id] != c {
		return
	}
	b := c.buffer(t.channel)
	if !b.scheduled || b.gen != gen {
		return
	}
	s.flushLocked(t, c)
	s.notify(c.id)
}

// flushLocked applies everything buffered on t for c as one mutation
func (s *Store) flushLocked(t *throttle, c *conversation) {
	b := c.buffer(t.channel)
	if b.timer != nil {
		b.timer.Stop()
	}
	text := strings.Join(b.chunks, "")
	b.chunks = nil
	b.scheduled = false
	b.timer = nil
	b.gen++

	if text == "" {
		return
	}
	t.apply(&c.state, text)
	c.state.IsWaitingForAI = false
}

// flushAllLocked drains every channel of c immediately
func (s *Store) flushAllLocked(c *conversation) {
	for _, ch := range []channel{channelReasoning, channelContent} {
		if b, ok := c.buffers[ch]; ok && len(b.chunks) > 0 {
			s.flushLocked(s.throttles[ch], c)
		}
	}
}

// cleanupThrottleLocked cancels pending timers and drops buffered chunks for c
func (s *Store) cleanupThrottleLocked(c *conversation) {
	for _, b := range c.buffers {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.chunks = nil
		b.scheduled = false
		b.timer = nil
		b.gen++
	}
}

// CleanupThrottleState cancels pending flushes for id and drops buffered chunks.
// Safe to call when nothing is pending.
func (s *Store) CleanupThrottleState(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		s.cleanupThrottleLocked(c)
	}
}

// PendingFlushes reports how many channels of id have a flush scheduled
func (s *Store) PendingFlushes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return 0
	}
	n := 0
	for _, b := range c.buffers {
		if b.scheduled {
			n++
		}
	}
	return n
}
