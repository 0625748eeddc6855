package model

// SendRequest is everything the backend needs to start a turn
type SendRequest struct {
	Content        string
	ConversationID string // empty starts a new conversation
	Provider       string
	Model          string
	APIKey         string // overrides stored credentials when set
	HistoryLimit   int    // previous messages sent as context, 0 = backend default
	SystemPrompt   string
	Attachments    []string // file paths
	SearchEnabled  bool
}
