package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/storage"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversations and live state as read-only JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			go pumpEvents(a.engine.Events(), a.store.Apply)

			a.startAPI(ctx, addr)
			a.log.Info().Str("addr", addr).Msg("api listening")
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8088", "listen address")
	return cmd
}

// pumpEvents feeds engine events to the store until the channel closes
func pumpEvents(events <-chan model.Event, apply func(model.Event)) {
	for ev := range events {
		apply(ev)
	}
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <conversation>",
		Short: "Export a conversation with its messages as JSON",
		Long: `Export a conversation by id or title. Without --output the file is
named after the conversation title. Use "-o -" to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.resolveConversation(ctx, args[0])
			if err != nil {
				return err
			}

			if output == "-" {
				return a.storage.ExportConversation(ctx, c.ID, cmd.OutOrStdout())
			}
			if output == "" {
				output = storage.SanitizeFilename(c.Title) + ".json"
			}
			if err := exportToFile(ctx, a.storage, c.ID, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s\n", c.Title, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func exportToFile(ctx context.Context, s *storage.Storage, id, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.ExportConversation(ctx, id, f)
}

func newModelsCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Check configured providers and list their models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			providers := provider.InitializeProviders(a.cfg, a.log)
			if len(providers) == 0 {
				return errors.New("no providers enabled")
			}
			printProviderStatus(cmd.OutOrStdout(), provider.CheckProviders(ctx, providers, timeout))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-provider timeout")
	return cmd
}

func printProviderStatus(out io.Writer, statuses []provider.ProviderStatus) {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	for _, s := range statuses {
		switch {
		case s.Err != nil:
			fmt.Fprintf(w, "%s\terror\t%v\n", s.ProviderID, s.Err)
		case len(s.Models) == 0:
			fmt.Fprintf(w, "%s\tok\tno models\n", s.ProviderID)
		default:
			for _, m := range s.Models {
				size := ""
				if m.Size > 0 {
					size = humanize.Bytes(uint64(m.Size))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ProviderID, m.Name, size)
			}
		}
	}
	w.Flush()
}

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations [query]",
		Aliases: []string{"ls"},
		Short:   "List conversations, optionally fuzzy filtered by title",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.storage.ListConversations(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				list = storage.FilterConversations(list, args[0])
			}
			printConversations(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.AddCommand(newRenameCmd(), newDeleteCmd())
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.resolveConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.storage.RenameConversation(ctx, c.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", c.ID, args[1])
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			// exact ids only
			if err := a.storage.DeleteConversation(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Change provider settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider> <field> <value>",
		Short: "Set base_url, enabled or apikey for a provider",
		Long: `Set one provider field. base_url and enabled are written to config.toml,
apikey goes to the credential store.

Examples:
  chatdesk provider set ollama base_url http://gpu-box:11434
  chatdesk provider set openrouter enabled true
  chatdesk provider set anthropic apikey sk-ant-...`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.UpdateProviderField(cfg, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %s\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}

func printConversations(out io.Writer, list []storage.Conversation) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations")
		return
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\n", c.ID, humanize.Time(c.UpdatedAt), c.Provider, c.Model, c.Title)
	}
	w.Flush()
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Search message content across all conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.storage.SearchMessages(ctx, args[0])
			if err != nil {
				return err
			}
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
}

func printMatches(out io.Writer, matches []storage.MessageMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ConversationID, m.ConversationTitle, m.Role, m.Preview)
	}
	w.Flush()
}
