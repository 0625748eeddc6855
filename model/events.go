package model

// Event is a backend notification about one conversation's in-progress turn.
// The set of variants is closed: only types in this package implement it.
type Event interface {
	Conversation() string
	isEvent()
}

// AttachmentStatus is the processing state of a turn's attachments
type AttachmentStatus string

const (
	AttachmentIdle       AttachmentStatus = "idle"
	AttachmentProcessing AttachmentStatus = "processing"
	AttachmentComplete   AttachmentStatus = "complete"
	AttachmentError      AttachmentStatus = "error"
)

// TurnStarted is emitted once per turn, before any output, after the user
// message has been persisted.
type TurnStarted struct {
	ConversationID     string
	UserMessage        Message
	AssistantMessageID string
}

// ContentChunk is a fragment of assistant text
type ContentChunk struct {
	ConversationID string
	Text           string
}

// ReasoningChunk is a fragment of assistant "thinking" text
type ReasoningChunk struct {
	ConversationID string
	Text           string
}

// ToolCallStarted is emitted when the model requests a tool invocation
type ToolCallStarted struct {
	ConversationID string
	ToolCallID     string
	ToolName       string
	Input          string // JSON-encoded arguments
}

// ToolCallFinished carries a tool's result
type ToolCallFinished struct {
	ConversationID string
	ToolCallID     string
	Output         string
	IsError        bool
}

// URLFetchStarted announces the URLs that will be fetched for a message
type URLFetchStarted struct {
	ConversationID string
	MessageID      string
	URLs           []string
}

// URLFetched marks one URL as fetched
type URLFetched struct {
	ConversationID string
	MessageID      string
	URL            string
}

// SearchDecision reports that the backend is (or is no longer) deciding
// whether to search the web for a message.
type SearchDecision struct {
	ConversationID string
	MessageID      string
	Pending        bool
}

// AttachmentStatusChanged reports attachment processing progress
type AttachmentStatusChanged struct {
	ConversationID string
	Status         AttachmentStatus
}

// AttachmentsUpdated signals that persisted attachment data changed
type AttachmentsUpdated struct {
	ConversationID string
}

// MessageComplete carries a persisted message; for the assistant role it ends the turn
type MessageComplete struct {
	ConversationID string
	Message        Message
}

// TurnError aborts the turn with an error
type TurnError struct {
	ConversationID string
	Message        string
}

// TurnCancelled ends a stopped turn that produced nothing worth persisting
type TurnCancelled struct {
	ConversationID string
}

func (e TurnStarted) Conversation() string             { return e.ConversationID }
func (e ContentChunk) Conversation() string            { return e.ConversationID }
func (e ReasoningChunk) Conversation() string          { return e.ConversationID }
func (e ToolCallStarted) Conversation() string         { return e.ConversationID }
func (e ToolCallFinished) Conversation() string        { return e.ConversationID }
func (e URLFetchStarted) Conversation() string         { return e.ConversationID }
func (e URLFetched) Conversation() string              { return e.ConversationID }
func (e SearchDecision) Conversation() string          { return e.ConversationID }
func (e AttachmentStatusChanged) Conversation() string { return e.ConversationID }
func (e AttachmentsUpdated) Conversation() string      { return e.ConversationID }
func (e MessageComplete) Conversation() string         { return e.ConversationID }
func (e TurnError) Conversation() string               { return e.ConversationID }
func (e TurnCancelled) Conversation() string           { return e.ConversationID }

func (TurnStarted) isEvent()             {}
func (ContentChunk) isEvent()            {}
func (ReasoningChunk) isEvent()          {}
func (ToolCallStarted) isEvent()         {}
func (ToolCallFinished) isEvent()        {}
func (URLFetchStarted) isEvent()         {}
func (URLFetched) isEvent()              {}
func (SearchDecision) isEvent()          {}
func (AttachmentStatusChanged) isEvent() {}
func (AttachmentsUpdated) isEvent()      {}
func (MessageComplete) isEvent()         {}
func (TurnError) isEvent()               {}
func (TurnCancelled) isEvent()           {}
