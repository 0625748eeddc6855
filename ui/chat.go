package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/storage"
	"chatdesk/store"
)

// Options wires the chat view to the store and the engine's event stream
type Options struct {
	Store  *store.Store
	Events <-chan model.Event
	Config *config.Config
	Keys   *config.KeyBindingsConfig

	ConversationID string // resume an existing conversation
	Title          string
	Provider       string
	Model          string
}

// ChatView is the bubbletea model of a single conversation
type ChatView struct {
	store       *store.Store
	events      <-chan model.Event
	changes     <-chan string
	unsubscribe func()
	cfg         *config.Config
	keys        *config.KeyBindingsConfig

	conversationID string
	title          string
	provider       string
	model          string

	attachments   []string
	searchEnabled bool
	pending       bool // a send is in flight
	status        string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool
}

func NewChatView(opts Options) ChatView {
	ta := textarea.New()
	ta.Placeholder = "Type a message. /attach <path> adds a file, /search toggles web search."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	keys := opts.Keys
	if keys == nil {
		keys = config.DefaultKeybindings()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	changes, unsubscribe := opts.Store.Subscribe()
	title := opts.Title
	if title == "" {
		title = "New conversation"
	}

	return ChatView{
		store:          opts.Store,
		events:         opts.Events,
		changes:        changes,
		unsubscribe:    unsubscribe,
		cfg:            cfg,
		keys:           keys,
		conversationID: opts.ConversationID,
		title:          title,
		provider:       opts.Provider,
		model:          opts.Model,
		searchEnabled:  cfg.Search.Enabled,
		viewport:       viewport.New(0, 0),
		textarea:       ta,
		spinner:        sp,
	}
}

func (c ChatView) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		c.spinner.Tick,
		ListenForEvents(c.events),
		WaitForStoreChange(c.changes),
	}
	if c.conversationID != "" {
		cmds = append(cmds, c.loadMessages())
	}
	return tea.Batch(cmds...)
}

func (c ChatView) loadMessages() tea.Cmd {
	st, id := c.store, c.conversationID
	return func() tea.Msg {
		st.LoadMessages(context.Background(), id)
		return nil
	}
}

func (c ChatView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		c.textarea.SetWidth(msg.Width)
		c.viewport.Width = msg.Width
		c.viewport.Height = max(msg.Height-c.chromeHeight(), 1)
		c.ready = true
		c.refresh(true)
		return c, nil

	case tea.KeyMsg:
		return c.handleKey(msg)

	case backendEventMsg:
		if c.conversationID == "" {
			if started, ok := msg.event.(model.TurnStarted); ok {
				c.conversationID = started.ConversationID
			}
		}
		c.store.Apply(msg.event)
		return c, ListenForEvents(c.events)

	case eventsClosedMsg:
		c.status = "Backend stopped"
		return c, nil

	case storeChangedMsg:
		if msg.conversationID == c.conversationID {
			c.refresh(true)
		}
		return c, WaitForStoreChange(c.changes)

	case sendResultMsg:
		c.pending = false
		if msg.err != nil {
			c.status = msg.err.Error()
			// a turn still in progress keeps its partial output
			if c.conversationID != "" && !errors.Is(msg.err, store.ErrTurnActive) {
				c.store.SetAPIError(c.conversationID, msg.err.Error())
			}
			return c, nil
		}
		if c.conversationID == "" {
			c.conversationID = msg.message.ConversationID
		}
		c.refresh(true)
		return c, nil

	case actionDoneMsg:
		c.status = msg.status
		return c, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		if c.busy() {
			c.refresh(false)
		}
		return c, cmd
	}

	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c ChatView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case c.keys.GetActionKey("quit"):
		c.unsubscribe()
		return c, tea.Quit

	case c.keys.GetActionKey("send"):
		return c.submit()

	case c.keys.GetActionKey("stop"):
		if c.conversationID == "" || !c.busy() {
			return c, nil
		}
		st, id := c.store, c.conversationID
		return c, func() tea.Msg {
			st.StopGeneration(context.Background(), id)
			return actionDoneMsg{status: "Stopped"}
		}

	case c.keys.GetActionKey("clear"):
		if c.conversationID == "" || c.busy() {
			return c, nil
		}
		st, id := c.store, c.conversationID
		return c, func() tea.Msg {
			st.ClearMessages(context.Background(), id)
			return actionDoneMsg{status: "Conversation cleared"}
		}

	case c.keys.GetActionKey("copy"):
		reply := c.lastReply()
		if reply == "" {
			return c, nil
		}
		return c, func() tea.Msg {
			if err := clipboard.WriteAll(reply); err != nil {
				return actionDoneMsg{status: fmt.Sprintf("Copy failed: %v", err)}
			}
			return actionDoneMsg{status: "Copied last reply"}
		}

	case "pgup", "pgdown":
		var cmd tea.Cmd
		c.viewport, cmd = c.viewport.Update(msg)
		return c, cmd
	}

	var cmd tea.Cmd
	c.textarea, cmd = c.textarea.Update(msg)
	return c, cmd
}

// submit handles slash commands or sends the textarea content
func (c ChatView) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(c.textarea.Value())
	if input == "" {
		return c, nil
	}

	switch {
	case strings.HasPrefix(input, "/attach "):
		path := strings.TrimSpace(strings.TrimPrefix(input, "/attach "))
		c.attachments = append(c.attachments, path)
		c.status = fmt.Sprintf("Attached %s (%d pending)", path, len(c.attachments))
		c.textarea.Reset()
		return c, nil
	case input == "/search":
		c.searchEnabled = !c.searchEnabled
		c.status = fmt.Sprintf("Web search %s", onOff(c.searchEnabled))
		c.textarea.Reset()
		return c, nil
	}

	if c.pending || c.busy() || (c.conversationID != "" && c.store.IsSending(c.conversationID)) {
		c.status = "Wait for the reply to finish or stop it first"
		return c, nil
	}

	req := model.SendRequest{
		Content:        input,
		ConversationID: c.conversationID,
		Provider:       c.provider,
		Model:          c.model,
		HistoryLimit:   c.cfg.Streaming.HistoryLimit,
		Attachments:    c.attachments,
		SearchEnabled:  c.searchEnabled,
	}
	if c.conversationID == "" {
		c.title = storage.GenerateTitle(input)
	}
	c.attachments = nil
	c.pending = true
	c.status = ""
	c.textarea.Reset()

	st := c.store
	return c, func() tea.Msg {
		msg, err := st.SendMessage(context.Background(), req)
		return sendResultMsg{message: msg, err: err}
	}
}

func (c ChatView) busy() bool {
	if c.conversationID == "" {
		return false
	}
	st := c.store.GetConversationState(c.conversationID)
	return st.IsStreaming || st.IsLoading
}

func (c ChatView) lastReply() string {
	if c.conversationID == "" {
		return ""
	}
	msgs := c.store.GetConversationState(c.conversationID).Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

func (c *ChatView) refresh(gotoBottom bool) {
	if !c.ready {
		return
	}
	var content string
	if c.conversationID == "" {
		content = DimStyle.Render("No messages yet. Start chatting!")
	} else {
		content = renderConversation(c.store.GetConversationState(c.conversationID), c.spinner.View(), c.width)
	}
	atBottom := c.viewport.AtBottom()
	c.viewport.SetContent(content)
	if gotoBottom || atBottom {
		c.viewport.GotoBottom()
	}
}

// chromeHeight is everything around the viewport: header, status, textarea, footer
func (c ChatView) chromeHeight() int {
	return 1 + 1 + c.textarea.Height() + 2 + 1
}

func (c ChatView) header() string {
	label := c.model
	if c.provider != "" {
		label = c.provider + "/" + label
	}
	right := DimStyle.Render(label)
	width := max(c.width-lipgloss.Width(right)-1, 10)
	title := TitleStyle.Render(runewidth.Truncate(c.title, width, "…"))
	gap := max(c.width-lipgloss.Width(title)-lipgloss.Width(right), 1)
	return title + strings.Repeat(" ", gap) + right
}

func (c ChatView) statusLine() string {
	var parts []string
	if c.conversationID != "" {
		if phase := c.store.Phase(c.conversationID); phase != store.PhaseIdle {
			parts = append(parts, c.spinner.View()+" "+phase.String())
		}
	}
	if c.searchEnabled {
		parts = append(parts, "search on")
	}
	if n := len(c.attachments); n > 0 {
		parts = append(parts, fmt.Sprintf("%d attachment(s)", n))
	}
	if g := c.store.Status(); g.Error != "" {
		parts = append(parts, ErrorStyle.Render(g.Error))
	} else if c.status != "" {
		parts = append(parts, c.status)
	}
	return StatusStyle.Render(strings.Join(parts, " · "))
}

func (c ChatView) footer() string {
	k := c.keys
	return FormatFooter(
		k.DisplayActionKey("send"), "Send",
		"Alt+Enter", "Newline",
		k.DisplayActionKey("stop"), "Stop",
		k.DisplayActionKey("clear"), "Clear",
		k.DisplayActionKey("copy"), "Copy",
		k.DisplayActionKey("quit"), "Quit",
	)
}

func (c ChatView) View() string {
	if !c.ready {
		return "Loading chatdesk..."
	}
	separator := BorderStyle.Render(strings.Repeat("─", max(c.width, 1)))
	return lipgloss.JoinVertical(lipgloss.Left,
		c.header(),
		c.viewport.View(),
		c.statusLine(),
		separator,
		c.textarea.View(),
		separator,
		c.footer(),
	)
}

// ConversationID is the conversation shown, empty until the first send
func (c ChatView) ConversationID() string {
	return c.conversationID
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
