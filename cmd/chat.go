package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lexware/chatsync/internal"
	"github.com/spf13/cobra"
)

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Italic(true)
)

var chatCmd = &cobra.Command{
	Use:   "chat <session-id>",
	Short: "Chat interactively in a session",
	Long: `Open a session and chat interactively. Streamed assistant replies are
printed as they arrive and persisted to the local transcript.

Type a message and press enter to send; /quit exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}

		printed := make(map[string]int)
		events := internal.Events{
			OnMessage: func(_ int64, msg internal.ChatMessage) {
				if msg.Type != internal.RoleAssistant {
					return
				}
				// Print only the unseen tail of a streaming reply.
				seen := printed[msg.ID]
				if len(msg.Content) > seen {
					fmt.Print(assistantStyle.Render(msg.Content[seen:]))
					printed[msg.ID] = len(msg.Content)
				}
				if msg.Complete {
					fmt.Println()
					if msg.Confidence != nil {
						fmt.Println(noticeStyle.Render(fmt.Sprintf("(confidence %.2f, %d source(s))",
							*msg.Confidence, len(msg.Sources))))
					}
				}
			},
			OnNotice: func(message string) {
				fmt.Println(noticeStyle.Render(message))
			},
			OnSelectionCleared: func(id int64) {
				fmt.Println(noticeStyle.Render(fmt.Sprintf("Session %d was deleted", id)))
			},
		}

		facade, cleanup, err := newEngine(events)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		history, err := facade.SelectSession(ctx, sessionID)
		cancel()
		if err != nil {
			return err
		}

		for _, msg := range history {
			prefix := assistantStyle.Render("assistant> ")
			if msg.Type == internal.RoleUser {
				prefix = userStyle.Render("you> ")
			}
			fmt.Println(prefix + msg.Content)
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(userStyle.Render("you> "))
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "/quit" {
				break
			}
			if line == "" {
				continue
			}
			if err := facade.Send(context.Background(), line); err != nil {
				fmt.Println(noticeStyle.Render("Not sent: " + err.Error()))
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
