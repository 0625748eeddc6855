package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"chatdesk/model"
)

// backendEventMsg carries one engine event into the bubbletea loop
type backendEventMsg struct {
	event model.Event
}

// eventsClosedMsg is delivered once the engine shut its event channel
type eventsClosedMsg struct{}

// storeChangedMsg reports a mutated conversation
type storeChangedMsg struct {
	conversationID string
}

type sendResultMsg struct {
	message model.Message
	err     error
}

type actionDoneMsg struct {
	status string
}

// ListenForEvents waits for the next engine event. Re-issue it after every
// backendEventMsg so events are applied one at a time, in order.
func ListenForEvents(events <-chan model.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return backendEventMsg{event: ev}
	}
}

// WaitForStoreChange waits for the next store notification
func WaitForStoreChange(changes <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-changes
		if !ok {
			return nil
		}
		return storeChangedMsg{conversationID: id}
	}
}
