package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/storage"
)

var (
	// ErrTurnInProgress is returned by Send while the conversation still has a running turn
	ErrTurnInProgress = errors.New("a reply is already being generated for this conversation")
	// ErrNoActiveTurn is returned by Stop when there is nothing to stop
	ErrNoActiveTurn = errors.New("no reply is being generated for this conversation")
	ErrClosed       = errors.New("engine closed")
)

const (
	DefaultHistoryLimit = 20
	MaxToolRounds       = 5
	eventBuffer         = 256
)

// ProviderResolver hands out a provider for a turn
type ProviderResolver interface {
	Resolve(providerID, modelName, apiKey string) (model.Provider, error)
}

// ToolRunner exposes MCP tools to the model
type ToolRunner interface {
	Tools() []mcptypes.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error)
}

type Options struct {
	Storage   *storage.Storage
	Providers ProviderResolver
	Tools     ToolRunner // optional

	DefaultProvider string
	SystemPrompt    string
	HistoryLimit    int
	Search          config.SearchConfig

	Logger zerolog.Logger
}

// Engine runs chat turns in the background and reports their progress as
// events. It implements store.Backend.
type Engine struct {
	opts     Options
	log      zerolog.Logger
	fetcher  *Fetcher
	searcher *Searcher

	events chan model.Event
	done   chan struct{}

	mu     sync.Mutex
	turns  map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = "ollama"
	}
	log := opts.Logger.With().Str("component", "engine").Logger()

	e := &Engine{
		opts:    opts,
		log:     log,
		fetcher: NewFetcher(opts.Search.FetchTimeout()),
		events:  make(chan model.Event, eventBuffer),
		done:    make(chan struct{}),
		turns:   make(map[string]context.CancelFunc),
	}
	if opts.Search.Endpoint != "" {
		e.searcher = NewSearcher(opts.Search.Endpoint, opts.Search.FetchTimeout())
	}
	return e
}

// Events delivers every turn's events in emission order. The channel is
// closed by Close once all turns have finished.
func (e *Engine) Events() <-chan model.Event {
	return e.events
}

func (e *Engine) emit(ev model.Event) {
	select {
	case e.events <- ev:
	case <-e.done:
		e.log.Debug().Type("event", ev).Msg("dropping event after close")
	}
}

// Send persists the user message, creating the conversation when
// req.ConversationID is empty, and starts generating the reply.
func (e *Engine) Send(ctx context.Context, req model.SendRequest) (model.Message, error) {
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return model.Message{}, errors.New("message is empty")
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return model.Message{}, ErrClosed
	}

	providerID := req.Provider
	if providerID == "" {
		providerID = e.opts.DefaultProvider
	}
	p, err := e.opts.Providers.Resolve(providerID, req.Model, req.APIKey)
	if err != nil {
		return model.Message{}, err
	}

	id := req.ConversationID
	if id == "" {
		c, err := e.opts.Storage.CreateConversation(ctx, storage.GenerateTitle(req.Content), providerID, p.GetModel())
		if err != nil {
			return model.Message{}, err
		}
		id = c.ID
	} else if err := e.opts.Storage.TouchConversation(ctx, id, providerID, p.GetModel()); err != nil {
		return model.Message{}, err
	}

	turnCtx, cancel, err := e.reserve(id)
	if err != nil {
		return model.Message{}, err
	}

	history, err := e.opts.Storage.ListMessages(ctx, id)
	if err != nil {
		e.release(id)
		cancel()
		return model.Message{}, fmt.Errorf("failed to load history: %w", err)
	}

	user, err := e.opts.Storage.SaveMessage(ctx, model.Message{
		ConversationID: id,
		Role:           model.RoleUser,
		Content:        req.Content,
		Attachments:    statAttachments(req.Attachments),
	})
	if err != nil {
		e.release(id)
		cancel()
		return model.Message{}, fmt.Errorf("failed to save message: %w", err)
	}

	e.log.Debug().Str("conversation", id).Str("provider", providerID).Str("model", p.GetModel()).Msg("turn starting")

	t := &turn{
		engine:   e,
		ctx:      turnCtx,
		provider: p,
		req:      req,
		user:     user,
		history:  history,
		log:      e.log.With().Str("conversation", id).Logger(),
	}
	go func() {
		defer e.wg.Done()
		defer cancel()
		t.run()
	}()

	return user, nil
}

// reserve registers a turn for id; the caller must start it or release it
func (e *Engine) reserve(id string) (context.Context, context.CancelFunc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, ErrClosed
	}
	if _, running := e.turns[id]; running {
		return nil, nil, ErrTurnInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.turns[id] = cancel
	e.wg.Add(1)
	return ctx, cancel, nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.turns, id)
	e.mu.Unlock()
	e.wg.Done()
}

// finish forgets a turn without touching the wait group
func (e *Engine) finish(id string) {
	e.mu.Lock()
	delete(e.turns, id)
	e.mu.Unlock()
}

// Stop cancels the running turn of conversationID. The turn still ends with
// MessageComplete (partial output persisted) or TurnCancelled.
func (e *Engine) Stop(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	cancel, ok := e.turns[conversationID]
	e.mu.Unlock()

	if !ok {
		return ErrNoActiveTurn
	}
	cancel()
	return nil
}

// Running reports whether conversationID has a turn in flight
func (e *Engine) Running(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.turns[conversationID]
	return ok
}

func (e *Engine) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	return e.opts.Storage.ListMessages(ctx, conversationID)
}

// ClearMessages deletes the history of an idle conversation
func (e *Engine) ClearMessages(ctx context.Context, conversationID string) error {
	if e.Running(conversationID) {
		return ErrTurnInProgress
	}
	return e.opts.Storage.ClearMessages(ctx, conversationID)
}

// Close cancels running turns, waits for them and closes the event channel
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, cancel := range e.turns {
		cancel()
	}
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()
	close(e.events)
}

func statAttachments(paths []string) []model.Attachment {
	if len(paths) == 0 {
		return nil
	}
	out := make([]model.Attachment, 0, len(paths))
	for _, p := range paths {
		p = config.ExpandPath(p)
		a := model.Attachment{Path: p, Name: filepath.Base(p)}
		if info, err := os.Stat(p); err == nil {
			a.Size = info.Size()
		}
		out = append(out, a)
	}
	return out
}
