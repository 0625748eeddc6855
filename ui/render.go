package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chatdesk/model"
	"chatdesk/store"
)

const maxToolOutputLines = 6

// renderConversation draws the persisted messages followed by the
// in-progress turn of st
func renderConversation(st store.ConversationState, spin string, width int) string {
	wrap := lipgloss.NewStyle().Width(max(width, 20))
	var b strings.Builder

	if st.IsLoading {
		b.WriteString(DimStyle.Render(spin+" Loading messages...") + "\n\n")
	}
	if st.LoadError != "" {
		b.WriteString(ErrorStyle.Render("Could not load messages: "+st.LoadError) + "\n\n")
	}

	for _, msg := range st.Messages {
		renderMessage(&b, wrap, msg)
	}

	if st.IsStreaming {
		renderTurn(&b, wrap, st, spin)
	}

	if st.APIError != "" {
		b.WriteString(ErrorStyle.Render("Error: ") + wrap.Render(st.APIError) + "\n\n")
	}

	if b.Len() == 0 {
		return DimStyle.Render("No messages yet. Start chatting!")
	}
	return b.String()
}

func renderMessage(b *strings.Builder, wrap lipgloss.Style, msg model.Message) {
	timestamp := DimStyle.Render(msg.Timestamp.Format("[15:04]"))

	switch msg.Role {
	case model.RoleUser:
		fmt.Fprintf(b, "%s %s\n", timestamp, UserStyle.Render("You"))
		b.WriteString(wrap.Render(msg.Content) + "\n")
		for _, a := range msg.Attachments {
			b.WriteString(DimStyle.Render(fmt.Sprintf("  📎 %s (%d bytes)", a.Name, a.Size)) + "\n")
		}
	case model.RoleAssistant:
		fmt.Fprintf(b, "%s %s\n", timestamp, AssistantStyle.Render("Assistant"))
		if msg.ReasoningContent != "" {
			b.WriteString(DimStyle.Render(wrap.Render(msg.ReasoningContent)) + "\n")
		}
		for _, tc := range msg.ToolCalls {
			status := store.ToolCallSuccess
			if tc.IsError {
				status = store.ToolCallError
			}
			renderToolCall(b, wrap, tc.Name, tc.Output, status)
		}
		b.WriteString(wrap.Render(msg.Content) + "\n")
	default:
		b.WriteString(DimStyle.Render(wrap.Render(msg.Content)) + "\n")
	}
	b.WriteString("\n")
}

// renderTurn draws the live turn in timeline order
func renderTurn(b *strings.Builder, wrap lipgloss.Style, st store.ConversationState, spin string) {
	b.WriteString(AssistantStyle.Render("Assistant") + "\n")

	if st.AttachmentStatus == model.AttachmentProcessing {
		b.WriteString(DimStyle.Render(spin+" Reading attachments...") + "\n")
	}
	for msgID, pending := range st.PendingSearchDecisions {
		if pending && msgID != "" {
			b.WriteString(DimStyle.Render(spin+" Deciding whether to search the web...") + "\n")
			break
		}
	}
	renderURLStatuses(b, st.URLStatuses, spin)

	for _, seg := range store.BuildTimeline(st.StreamingContent, st.StreamingReasoningContent, st.StreamingToolCalls) {
		switch seg.Kind {
		case store.SegmentReasoning:
			b.WriteString(DimStyle.Render(wrap.Render(seg.Text)) + "\n")
		case store.SegmentText:
			b.WriteString(wrap.Render(seg.Text) + "\n")
		case store.SegmentToolCall:
			renderToolCall(b, wrap, seg.ToolCall.ToolName, seg.ToolCall.ToolOutput, seg.ToolCall.Status)
		}
	}

	switch {
	case st.IsWaitingForAI:
		b.WriteString(spin + " Waiting for response...\n")
	case st.IsReasoningActive && st.StreamingContent == "":
		b.WriteString(DimStyle.Render(spin+" Thinking...") + "\n")
	default:
		b.WriteString("▋\n")
	}
	b.WriteString("\n")
}

func renderURLStatuses(b *strings.Builder, statuses map[string]map[string]store.URLStatus, spin string) {
	var lines []string
	for _, urls := range statuses {
		for u, status := range urls {
			mark := spin
			if status == store.URLFetched {
				mark = "✓"
			}
			lines = append(lines, DimStyle.Render(fmt.Sprintf("%s %s", mark, u)))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
}

func renderToolCall(b *strings.Builder, wrap lipgloss.Style, name, output string, status store.ToolCallStatus) {
	icon := "⚙"
	switch status {
	case store.ToolCallSuccess:
		icon = "✓"
	case store.ToolCallError:
		icon = "✗"
	}
	b.WriteString(ToolStyle.Render(fmt.Sprintf("%s %s", icon, name)) + "\n")
	if output == "" {
		return
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > maxToolOutputLines {
		lines = append(lines[:maxToolOutputLines], fmt.Sprintf("... %d more lines", len(lines)-maxToolOutputLines))
	}
	for _, l := range lines {
		b.WriteString(DimStyle.Render(wrap.Render("  "+l)) + "\n")
	}
}
