package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lexware/chatsync/internal"
	"github.com/spf13/cobra"
)

var sessionsRefresh bool

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chat sessions",
	Long:  `List your chat sessions, newest first, from the local snapshot and the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, cleanup, err := newEngine(internal.Events{})
		if err != nil {
			return err
		}
		defer cleanup()

		if sessionsRefresh {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := facade.RefreshSessions(ctx); err != nil {
				internal.LogWarn("Refresh failed, showing last-known sessions: %v", err)
			}
		}

		displaySessions(facade.Sessions())
		return nil
	},
}

func displaySessions(sessions []internal.ChatSession) {
	if len(sessions) == 0 {
		fmt.Println(headerStyle.Render("No sessions found"))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(sessions)))
	fmt.Println(header)
	fmt.Println()

	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Type")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, session := range sessions {
		title := session.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		kind := string(session.SessionType)
		if session.DocumentID != nil {
			kind = fmt.Sprintf("%s (doc %d)", kind, *session.DocumentID)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(fmt.Sprintf("%d", session.ID)),
			lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(title),
			typeStyle.Render(kind),
			countStyle.Render(fmt.Sprintf("%d", session.MessageCount)),
			dateStyle.Render(formatSessionTime(session.CreatedAt)))
	}

	_ = w.Flush()
}

func formatSessionTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().BoolVar(&sessionsRefresh, "refresh", true, "Refresh from the server before listing")
}
