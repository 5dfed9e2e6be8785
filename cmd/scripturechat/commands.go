package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scripturechat/pkg/chatclient"
	"scripturechat/pkg/transcript"
)

func newAskCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send one message to the current session and print the reply",
		Long: `Sends a message to the current session. A passage reference is looked up
and commented on; anything else gets a conversational reply.

Examples:
  scripturechat ask John 3:16
  scripturechat ask "Romans 8:28 by Charles Spurgeon"
  scripturechat ask What does grace mean?`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			ctx := cmd.Context()
			session, err := client.CurrentSession(ctx)
			if err != nil {
				return err
			}
			out, err := client.SendMessage(ctx, session.ID, "", strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderMessage(cmd.OutOrStdout(), out.BotTurn)
			if out.Stale {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: a new session was started while this turn was running")
			}
			return nil
		},
	}
}

func newChatCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat on the current session",
		Long: `Streams the current session and reads messages from stdin, one per line.
Type /new to start a new session and /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *globalOptions) error {
	ctx := cmd.Context()
	conv := chatclient.NewConversation(opts.client())
	defer conv.Close()

	session, err := conv.Start(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s\n", session.ID)

	printed := 0
	status := ""
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-conv.Changed():
			}
			msgs := conv.Messages()
			if len(msgs) < printed {
				printed = 0
			}
			for _, m := range msgs[printed:] {
				if m.IsUser() {
					continue
				}
				renderMessage(out, m)
			}
			printed = len(msgs)
			if s := conv.Status(); s != status {
				status = s
				if s != "" {
					fmt.Fprintf(out, "... %s\n", s)
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/new":
				session, err := conv.NewSession(ctx)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					continue
				}
				fmt.Fprintf(out, "session %s\n", session.ID)
				continue
			}
			if _, err := conv.Send(ctx, line); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
		}
	}
}

func newNewCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.client().NewSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.ID)
			return nil
		},
	}
}

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past queries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.client().ListHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderHistory(cmd.OutOrStdout(), entries)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show (0 for all)")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.client().DeleteHistory(cmd.Context(), args[0])
		},
	})
	return historyCmd
}

func newSearchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <words...>",
		Short: "Full-text verse search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := opts.client().Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}
}

func newCommentatorsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commentators",
		Short: "List commentators recognized after \" by \"",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := opts.client().Commentators(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newArchiveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [session-id]",
		Short: "Export a session transcript and print a download link",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			} else {
				session, err := client.CurrentSession(cmd.Context())
				if err != nil {
					return err
				}
				sessionID = session.ID
			}
			archive, err := client.ArchiveSession(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), archive.URL)
			return nil
		},
	}
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [session-id]",
		Short: "Follow a session transcript as it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			ctx := cmd.Context()
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			} else {
				session, err := client.CurrentSession(ctx)
				if err != nil {
					return err
				}
				sessionID = session.ID
			}
			updates, err := client.Watch(ctx, sessionID)
			if err != nil {
				return err
			}
			printed := 0
			for u := range updates {
				switch u.Kind {
				case transcript.UpdateStatus:
					if u.Status != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "... %s\n", u.Status)
					}
				case transcript.UpdateSnapshot:
					if len(u.Messages) < printed {
						printed = 0
					}
					for _, m := range u.Messages[printed:] {
						renderMessage(cmd.OutOrStdout(), m)
					}
					printed = len(u.Messages)
				}
			}
			return nil
		},
	}
}

func newShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print a session transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			} else {
				session, err := client.CurrentSession(cmd.Context())
				if err != nil {
					return err
				}
				sessionID = session.ID
			}
			msgs, err := client.ListMessages(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			renderTranscript(cmd.OutOrStdout(), msgs, "")
			return nil
		},
	}
}
