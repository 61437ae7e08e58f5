package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lexware/chatsync/internal"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a chat session and its local transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}

		facade, cleanup, err := newEngine(internal.Events{})
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := facade.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
		fmt.Printf("Deleted session %d\n", sessionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
