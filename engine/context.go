package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"chatdesk/model"
)

const maxAttachmentBytes = 256 << 10

// attachments reads the user's text attachments into context blocks
func (t *turn) attachments() []string {
	t.emit(model.AttachmentStatusChanged{ConversationID: t.id(), Status: model.AttachmentProcessing})

	var blocks []string
	status := model.AttachmentComplete
	for _, a := range t.user.Attachments {
		text, err := readTextFile(a.Path)
		if err != nil {
			t.log.Warn().Err(err).Str("path", a.Path).Msg("skipping attachment")
			status = model.AttachmentError
			continue
		}
		blocks = append(blocks, fmt.Sprintf("<attachment name=%q>\n%s\n</attachment>", a.Name, text))
	}

	t.emit(model.AttachmentStatusChanged{ConversationID: t.id(), Status: status})
	t.emit(model.AttachmentsUpdated{ConversationID: t.id()})
	return blocks
}

func readTextFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAttachmentBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	truncated := len(data) > maxAttachmentBytes
	if truncated {
		data = data[:maxAttachmentBytes]
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(trimPartialRune(data)) {
		return "", fmt.Errorf("%s is not a text file", path)
	}

	text := string(data)
	if truncated {
		text += "\n[truncated]"
	}
	return text, nil
}

// trimPartialRune drops a rune cut in half by the read limit
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if r, _ := utf8.DecodeLastRune(b); r != utf8.RuneError {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// search resolves URLs for the user message and fetches them as context blocks
func (t *turn) search() []string {
	e := t.engine
	t.emit(model.SearchDecision{ConversationID: t.id(), MessageID: t.assistantID, Pending: true})

	limit := e.opts.Search.MaxURLs
	urls := ExtractURLs(t.user.Content, limit)
	if len(urls) == 0 && e.searcher != nil {
		found, err := e.searcher.Search(t.ctx, t.user.Content, limit)
		if err != nil {
			t.log.Warn().Err(err).Msg("web search failed")
		}
		urls = found
	}

	t.emit(model.SearchDecision{ConversationID: t.id(), MessageID: t.assistantID, Pending: false})
	if len(urls) == 0 {
		return nil
	}

	t.emit(model.URLFetchStarted{ConversationID: t.id(), MessageID: t.assistantID, URLs: urls})
	var blocks []string
	for _, u := range urls {
		page, err := e.fetcher.Fetch(t.ctx, u)
		t.emit(model.URLFetched{ConversationID: t.id(), MessageID: t.assistantID, URL: u})
		if err != nil {
			t.log.Warn().Err(err).Str("url", u).Msg("fetch failed")
			continue
		}
		blocks = append(blocks, page.Block())
	}
	return blocks
}

// buildMessages assembles the provider request: system prompt, recent history
// and the new user message with any gathered context appended
func (t *turn) buildMessages(extra []string) []model.Message {
	e := t.engine
	var msgs []model.Message

	prompt := t.req.SystemPrompt
	if prompt == "" {
		prompt = e.opts.SystemPrompt
	}
	if prompt != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: prompt})
	}

	limit := t.req.HistoryLimit
	if limit <= 0 {
		limit = e.opts.HistoryLimit
	}
	history := t.history
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, model.Message{Role: m.Role, Content: m.Content})
	}

	content := t.user.Content
	if len(extra) > 0 {
		content += "\n\n" + strings.Join(extra, "\n\n")
	}
	return append(msgs, model.Message{Role: model.RoleUser, Content: content})
}
