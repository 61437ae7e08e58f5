package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lexware/chatsync/internal"
	"github.com/spf13/cobra"
)

var newDocumentID int64

var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a chat session",
	Long:  `Create a new chat session, optionally bound to a document.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, cleanup, err := newEngine(internal.Events{})
		if err != nil {
			return err
		}
		defer cleanup()

		title := ""
		if len(args) > 0 {
			title = strings.TrimSpace(args[0])
		}

		var documentID *int64
		if newDocumentID > 0 {
			documentID = &newDocumentID
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		session, err := facade.CreateSession(ctx, title, documentID)
		if err != nil {
			return err
		}

		fmt.Printf("Created session %d: %s\n", session.ID, session.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().Int64Var(&newDocumentID, "document", 0, "Document id to bind the session to")
}
