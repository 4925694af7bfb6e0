package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/conversation"
	"github.com/maeumieum/counsel/backend/internal/logging"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	chatservice "github.com/maeumieum/counsel/backend/internal/service/chat"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "chattester",
		Short: "Exercise counseling sessions against the configured AI provider",
	}
	root.AddCommand(newTopicsCommand(), newChatCommand())
	return root
}

func newTopicsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List counseling topics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range topic.Seed() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-13s %s - %s\n", t.ID, t.Label, t.Description)
			}
			return nil
		},
	}
}

type chatOptions struct {
	topicID  string
	messages []string
	provider string
}

func newChatCommand() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a session and send messages, printing the reply as it streams",
		Long: "Messages come from --message flags; without any, each line of stdin " +
			"is sent as one turn.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.topicID, "topic", "t", topic.General, "topic id (see the topics command)")
	cmd.Flags().StringArrayVarP(&opts.messages, "message", "m", nil, "message to send; repeat for several turns")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "override AI_PROVIDER")
	return cmd
}

func runChat(ctx context.Context, opts *chatOptions, in io.Reader, out, errOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if opts.provider != "" {
		cfg.AI.Provider = strings.ToLower(opts.provider)
	}
	logger := logging.New(cfg.Log, errOut)

	provider, err := ai.NewProvider(ctx, cfg.AI, logger)
	if err != nil {
		return errors.Wrap(err, "initialize AI provider")
	}

	svc := chatservice.NewService(topic.NewMemoryStore(topic.Seed()), provider, logger,
		chatservice.WithApology(cfg.Turn.Apology))
	defer func() { _ = svc.Shutdown(context.Background()) }()

	session, messages, err := svc.CreateSession(ctx, opts.topicID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
	}

	unsubscribe, err := svc.Subscribe(session.ID, printer(out))
	if err != nil {
		return err
	}
	defer unsubscribe()

	send := func(text string) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		outcome, err := svc.Submit(ctx, session.ID, text)
		if err != nil {
			return err
		}
		if decision := svc.Screen(session.ID, text); decision.Flagged() {
			fmt.Fprintf(out, "[safety] %s %v: 112 / 1366 / 109\n", decision.Level, decision.Categories)
		}
		if outcome.Failed {
			fmt.Fprintln(errOut, "reply failed, apology shown")
		}
		return nil
	}

	if len(opts.messages) > 0 {
		for _, text := range opts.messages {
			if err := send(text); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// printer echoes user messages and streams model replies as they grow.
func printer(out io.Writer) conversation.Listener {
	written := make(map[string]int)
	return func(change conversation.Change) {
		msg := change.Message
		switch change.Kind {
		case conversation.ChangeAppended:
			if msg.Role == chat.RoleUser {
				fmt.Fprintf(out, "[user] %s\n", msg.Content)
				return
			}
			fmt.Fprintf(out, "[%s] ", msg.Role)
			written[msg.ID] = 0
		case conversation.ChangeUpdated:
			n, ok := written[msg.ID]
			if !ok {
				return
			}
			if len(msg.Content) > n {
				fmt.Fprint(out, msg.Content[n:])
				written[msg.ID] = len(msg.Content)
			}
			if !msg.IsStreaming {
				fmt.Fprintln(out)
				delete(written, msg.ID)
			}
		}
	}
}
