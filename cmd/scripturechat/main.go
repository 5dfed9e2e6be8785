// Command scripturechat is a terminal client for the chat service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scripturechat/internal/util"
	"scripturechat/pkg/chatclient"
)

type globalOptions struct {
	server   string
	token    string
	userID   string
	logLevel string
}

func (o *globalOptions) client() *chatclient.Client {
	var opts []chatclient.Option
	if o.token != "" {
		opts = append(opts, chatclient.WithToken(o.token))
	}
	if o.userID != "" {
		opts = append(opts, chatclient.WithUserID(o.userID))
	}
	return chatclient.NewClient(o.server, opts...)
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "scripturechat",
		Short:         "Look up passages and chat about them from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(opts.logLevel, "scripturechat")
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("SCRIPTURECHAT_URL", "http://localhost:8083"), "chat service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SCRIPTURECHAT_TOKEN"), "bearer token")
	root.PersistentFlags().StringVar(&opts.userID, "user", os.Getenv("SCRIPTURECHAT_USER"), "user id sent as X-User-Id when the service runs without token auth")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newAskCommand(opts),
		newChatCommand(opts),
		newNewCommand(opts),
		newHistoryCommand(opts),
		newSearchCommand(opts),
		newCommentatorsCommand(opts),
		newArchiveCommand(opts),
		newWatchCommand(opts),
		newShowCommand(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
