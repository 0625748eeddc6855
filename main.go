package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatdesk/api"
	"chatdesk/config"
	"chatdesk/engine"
	"chatdesk/mcp"
	"chatdesk/provider"
	"chatdesk/storage"
	"chatdesk/store"
	"chatdesk/ui"
)

var Version = "v0.1.0"

// app is the wired backend shared by every command
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	storage *storage.Storage
	tools   *mcp.Manager
	engine  *engine.Engine
	store   *store.Store
}

// newApp loads config and opens storage. MCP servers are only launched when
// withTools is set since read-only commands never call them.
func newApp(ctx context.Context, withTools bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := config.InitDebugLog(cfg.DataDir())

	s, err := storage.Open(config.GetDatabasePath(cfg.DataDir()))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	tools := mcp.NewManager(log)
	if withTools {
		tools.StartAll(ctx, cfg.Tools)
	}

	eng := engine.New(engine.Options{
		Storage:         s,
		Providers:       provider.NewResolver(cfg, log),
		Tools:           tools,
		DefaultProvider: cfg.DefaultProvider,
		SystemPrompt:    cfg.SystemPrompt,
		HistoryLimit:    cfg.Streaming.HistoryLimit,
		Search:          cfg.Search,
		Logger:          log,
	})

	st := store.New(eng,
		store.WithFlushDelay(cfg.FlushInterval()),
		store.WithMaxMessages(cfg.Streaming.MaxMessagesInMemory),
		store.WithLogger(log),
	)

	return &app{cfg: cfg, log: log, storage: s, tools: tools, engine: eng, store: st}, nil
}

func (a *app) Close() {
	a.engine.Close()
	a.tools.Shutdown()
	if err := a.storage.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close storage")
	}
}

// resolveConversation accepts an id or a fuzzy title query
func (a *app) resolveConversation(ctx context.Context, ref string) (*storage.Conversation, error) {
	if c, err := a.storage.GetConversation(ctx, ref); err == nil {
		return c, nil
	} else if !errors.Is(err, storage.ErrConversationNotFound) {
		return nil, err
	}

	list, err := a.storage.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	matches := storage.FilterConversations(list, ref)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no conversation matches %q", ref)
	}
	return &matches[0], nil
}

// startAPI serves the read-only API until ctx is done
func (a *app) startAPI(ctx context.Context, addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.NewHandler(a.storage, a.store, a.log)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("api server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return srv
}

func newRootCmd() *cobra.Command {
	var (
		providerFlag string
		modelFlag    string
		resumeFlag   string
		apiAddrFlag  string
	)

	cmd := &cobra.Command{
		Use:     "chatdesk",
		Short:   "Terminal chat client for local and hosted LLMs",
		Version: Version,
		Long: `chatdesk is a terminal chat client for Ollama, OpenAI, OpenRouter and
Anthropic models with MCP tools, web search and persistent history.

Examples:
  chatdesk                              Start a new conversation
  chatdesk --resume "trip"              Continue the conversation best matching "trip"
  chatdesk -p anthropic -m claude-sonnet-4-5
  chatdesk serve --addr :8088           Serve the read-only JSON API
  chatdesk export <id> -o chat.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := ui.Options{
				Store:    a.store,
				Events:   a.engine.Events(),
				Config:   a.cfg,
				Provider: firstNonEmpty(providerFlag, a.cfg.DefaultProvider),
				Model:    firstNonEmpty(modelFlag, a.cfg.DefaultModel),
			}
			if keys, err := config.LoadKeybindings(a.cfg.DataDir()); err != nil {
				a.log.Warn().Err(err).Msg("using default keybindings")
			} else {
				opts.Keys = keys
			}

			if resumeFlag != "" {
				c, err := a.resolveConversation(ctx, resumeFlag)
				if err != nil {
					return err
				}
				opts.ConversationID = c.ID
				opts.Title = c.Title
				if providerFlag == "" && c.Provider != "" {
					opts.Provider = c.Provider
				}
				if modelFlag == "" && c.Model != "" {
					opts.Model = c.Model
				}
			}

			if apiAddrFlag != "" {
				a.startAPI(ctx, apiAddrFlag)
			}

			p := tea.NewProgram(ui.NewChatView(opts), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running chatdesk: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerFlag, "provider", "p", "", "provider id (ollama, openai, openrouter, anthropic)")
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "model name")
	cmd.Flags().StringVarP(&resumeFlag, "resume", "r", "", "conversation id or title to continue")
	cmd.Flags().StringVar(&apiAddrFlag, "api", "", "also serve the read-only API on this address")

	cmd.AddCommand(
		newServeCmd(),
		newExportCmd(),
		newModelsCmd(),
		newConversationsCmd(),
		newSearchCmd(),
		newProviderCmd(),
	)
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
