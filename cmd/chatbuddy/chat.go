package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avvvet/chatbuddy/internal/classifier"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	Long: `Opens an interactive chat. Lines starting with / are commands:

  /save <name>   save the conversation
  /load <name>   restore a saved conversation
  /sessions      list saved conversations
  /delete <name> delete a saved conversation
  /history       show the current context window
  /clear         forget the current conversation
  /reset         start over, forgetting the search preference too
  /retrain       retrain the model from the intents
  /quit          leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.loadModel(ctx, true); err != nil {
			return err
		}

		return runChat(ctx, a, chatUser, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id for the conversation")
	rootCmd.AddCommand(chatCmd)
}

// runChat reads messages from in until EOF or /quit
func runChat(ctx context.Context, a *app, userID string, in io.Reader, out io.Writer) error {
	a.events.Add(classifier.NotifierFunc(func(_ context.Context, e classifier.Event) {
		if e.Type == classifier.EventRetrainSucceeded {
			fmt.Fprintf(out, "Bot: model retrained (generation %d)\n", e.Generation)
		} else {
			fmt.Fprintf(out, "Bot: retraining failed: %s\n", e.Error)
		}
	}))

	fmt.Fprintln(out, "Chat with the bot. Type /quit to leave.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		if strings.HasPrefix(line, "/") {
			quit, err := runChatCommand(ctx, a, userID, line, out)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		resp, err := a.chat.Process(ctx, userID, line)
		if err != nil {
			return err
		}
		a.logger.Debug("chat reply",
			zap.String("intent", resp.Intent),
			zap.Float64("confidence", resp.Confidence))
		fmt.Fprintf(out, "Bot: %s\n", resp.Response)
	}
}

func runChatCommand(ctx context.Context, a *app, userID, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/save":
		if err := a.chat.SaveHistory(ctx, userID, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Saved conversation %q\n", arg)

	case "/load":
		if err := a.chat.LoadHistory(ctx, userID, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Loaded conversation %q\n", arg)

	case "/sessions":
		names, err := a.chat.ListHistories(ctx)
		if err != nil {
			return false, err
		}
		if len(names) == 0 {
			fmt.Fprintln(out, "No saved conversations")
		}
		for _, n := range names {
			fmt.Fprintf(out, "  %s\n", n)
		}

	case "/delete":
		if err := a.chat.DeleteHistory(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Deleted conversation %q\n", arg)

	case "/history":
		turns, err := a.chat.GetContext(userID)
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, prompts.BuildTranscript(turns))

	case "/clear":
		if err := a.chat.ClearHistory(userID); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Conversation cleared")

	case "/reset":
		a.chat.ResetSession(userID)
		fmt.Fprintln(out, "Session reset")

	case "/retrain":
		if _, err := a.coordinator.Retrain(ctx, false); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Retraining in the background...")

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}
