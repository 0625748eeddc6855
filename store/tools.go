package store

import (
	"sort"
)

// AddStreamingToolCall registers a running tool call. Its Order is the number
// of calls already registered for the conversation, and it snapshots both
// accumulators (after draining buffered chunks) so Timeline can place it.
// A tool call counts as first output and clears the waiting flag.
func (s *Store) AddStreamingToolCall(id, toolCallID, name, input string) {
	s.mutate(id, func(c *conversation) {
		s.addToolCallLocked(c, toolCallID, name, input)
	})
}

func (s *Store) addToolCallLocked(c *conversation, toolCallID, name, input string) {
	s.flushAllLocked(c)

	if existing, ok := c.state.StreamingToolCalls[toolCallID]; ok {
		existing.ToolName = name
		existing.ToolInput = input
		c.state.StreamingToolCalls[toolCallID] = existing
		c.state.IsWaitingForAI = false
		return
	}

	c.state.StreamingToolCalls[toolCallID] = StreamingToolCall{
		ID:              toolCallID,
		ToolName:        name,
		ToolInput:       input,
		Status:          ToolCallRunning,
		Order:           len(c.state.StreamingToolCalls),
		ContentBefore:   c.state.StreamingContent,
		ReasoningBefore: c.state.StreamingReasoningContent,
	}
	c.state.IsWaitingForAI = false
}

// UpdateStreamingToolCall records a tool's output and marks it successful.
// Unknown tool call ids are ignored.
func (s *Store) UpdateStreamingToolCall(id, toolCallID, output string) {
	s.mutate(id, func(c *conversation) {
		finishToolCall(&c.state, toolCallID, output, ToolCallSuccess)
	})
}

// FailStreamingToolCall records a tool's error output
func (s *Store) FailStreamingToolCall(id, toolCallID, output string) {
	s.mutate(id, func(c *conversation) {
		finishToolCall(&c.state, toolCallID, output, ToolCallError)
	})
}

func finishToolCall(st *ConversationState, toolCallID, output string, status ToolCallStatus) {
	tc, ok := st.StreamingToolCalls[toolCallID]
	if !ok {
		return
	}
	tc.ToolOutput = output
	tc.Status = status
	st.StreamingToolCalls[toolCallID] = tc
}

// ClearStreamingToolCalls forgets every streaming tool call of the conversation
func (s *Store) ClearStreamingToolCalls(id string) {
	s.mutate(id, func(c *conversation) {
		c.state.StreamingToolCalls = make(map[string]StreamingToolCall)
	})
}

// SetURLStatuses starts tracking urls for messageID, all as fetching.
// Any previous tracking for messageID is replaced.
func (s *Store) SetURLStatuses(id, messageID string, urls []string) {
	s.mutate(id, func(c *conversation) {
		setURLStatuses(&c.state, messageID, urls)
	})
}

func setURLStatuses(st *ConversationState, messageID string, urls []string) {
	m := make(map[string]URLStatus, len(urls))
	for _, u := range urls {
		m[u] = URLFetching
	}
	st.URLStatuses[messageID] = m
}

// MarkURLFetched flips one tracked URL to fetched. Untracked messages or URLs
// are left alone so stale events cannot resurrect entries.
func (s *Store) MarkURLFetched(id, messageID, url string) {
	s.mutate(id, func(c *conversation) {
		markURLFetched(&c.state, messageID, url)
	})
}

func markURLFetched(st *ConversationState, messageID, url string) {
	urls, ok := st.URLStatuses[messageID]
	if !ok {
		return
	}
	if _, ok := urls[url]; !ok {
		return
	}
	urls[url] = URLFetched
}

// ClearURLStatuses stops tracking URLs for messageID
func (s *Store) ClearURLStatuses(id, messageID string) {
	s.mutate(id, func(c *conversation) {
		delete(c.state.URLStatuses, messageID)
	})
}

// SetPendingSearchDecision marks or unmarks messageID as awaiting a search decision
func (s *Store) SetPendingSearchDecision(id, messageID string, pending bool) {
	s.mutate(id, func(c *conversation) {
		setPendingSearchDecision(&c.state, messageID, pending)
	})
}

func setPendingSearchDecision(st *ConversationState, messageID string, pending bool) {
	if pending {
		st.PendingSearchDecisions[messageID] = true
		return
	}
	delete(st.PendingSearchDecisions, messageID)
}

// ClearPendingSearchDecisions drops every pending search decision of the conversation
func (s *Store) ClearPendingSearchDecisions(id string) {
	s.mutate(id, func(c *conversation) {
		c.state.PendingSearchDecisions = make(map[string]bool)
	})
}

// SegmentKind tags a Timeline segment
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentReasoning
	SegmentToolCall
)

// Segment is one piece of a turn's visual timeline
type Segment struct {
	Kind     SegmentKind
	Text     string
	ToolCall StreamingToolCall
}

// Timeline reconstructs the interleaving of text, reasoning and tool calls of
// the in-progress turn.
func (s *Store) Timeline(id string) []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.conv(id).state
	return BuildTimeline(st.StreamingContent, st.StreamingReasoningContent, st.StreamingToolCalls)
}

// BuildTimeline orders tool calls by Order and cuts each accumulator at the
// length of the snapshot the call recorded, yielding
// reasoning/text → tool → reasoning/text → tool → … → remaining reasoning/text.
func BuildTimeline(content, reasoning string, calls map[string]StreamingToolCall) []Segment {
	ordered := make([]StreamingToolCall, 0, len(calls))
	for _, tc := range calls {
		ordered = append(ordered, tc)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	var segments []Segment
	textPos, reasonPos := 0, 0

	for _, tc := range ordered {
		if end := cut(len(tc.ReasoningBefore), reasonPos, len(reasoning)); end > reasonPos {
			segments = append(segments, Segment{Kind: SegmentReasoning, Text: reasoning[reasonPos:end]})
			reasonPos = end
		}
		if end := cut(len(tc.ContentBefore), textPos, len(content)); end > textPos {
			segments = append(segments, Segment{Kind: SegmentText, Text: content[textPos:end]})
			textPos = end
		}
		segments = append(segments, Segment{Kind: SegmentToolCall, ToolCall: tc})
	}

	if reasonPos < len(reasoning) {
		segments = append(segments, Segment{Kind: SegmentReasoning, Text: reasoning[reasonPos:]})
	}
	if textPos < len(content) {
		segments = append(segments, Segment{Kind: SegmentText, Text: content[textPos:]})
	}
	return segments
}

// cut clamps a snapshot length into [lo, hi]
func cut(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
