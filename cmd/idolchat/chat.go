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

	"github.com/spf13/cobra"

	"github.com/zhouzirui/idolchat/internal/avatar"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/service/session"
)

var (
	chatUserID   string
	chatUsername string
)

// chatCmd runs a terminal conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the idol from the terminal",
	Long: `Opens an interactive conversation bound to --user.

Type a message and press enter. Commands:
  /history   show the turns stored for this user
  /quit      log out and exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUserID, "user", "", "user id to chat as (required)")
	chatCmd.Flags().StringVar(&chatUsername, "name", "", "display name, defaults to the user id")
	_ = chatCmd.MarkFlagRequired("user")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := session.NewManager(session.Deps{
		Gateway:        newGateway(),
		Store:          store,
		Driver:         avatar.NewLogDriver(logger),
		Logger:         logger,
		RequestTimeout: cfg.Gateway.Timeout,
	})

	info, controller, err := manager.Start(ctx, chat.Identity{UserID: chatUserID, Username: chatUsername})
	if err != nil {
		return err
	}
	defer func() { _ = manager.End(context.Background(), info.ID) }()

	return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), controller)
}

// repl reads lines from in until EOF, /quit or ctx is done.
func repl(ctx context.Context, in io.Reader, out io.Writer, controller *session.Controller) error {
	identity := controller.Identity()
	fmt.Fprintf(out, "已登录为 %s。输入 /quit 退出。\n", identity.Username)

	lines := make(chan string)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-quit:
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			return nil
		case "/history":
			printTurns(out, controller.History(ctx))
			continue
		}

		seen := len(controller.Transcript())
		done, accepted := controller.Submit(ctx, line)
		if !accepted {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}

		transcript := controller.Transcript()
		if seen+1 < len(transcript) {
			printTurns(out, transcript[seen+1:])
		}
	}
}

func printTurns(out io.Writer, turns []chat.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, "（没有历史记录）")
		return
	}
	for _, turn := range turns {
		fmt.Fprintln(out, formatTurn(turn))
	}
}

func formatTurn(turn chat.Turn) string {
	if turn.Role == chat.RoleUser {
		return "你: " + turn.Text
	}
	if turn.Emotion == "" {
		return "偶像: " + turn.Text
	}
	return fmt.Sprintf("偶像: %s  [%s (%.2f)]", turn.Text, turn.Emotion, turn.EmotionIntensity)
}
