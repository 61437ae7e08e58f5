package cmd

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/lexware/chatsync/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Synchronize legal chat sessions with the platform in real time",
	Long: `chatsync keeps a durable local transcript of your legal assistant
conversations in sync with the server.

It maintains the session list, reconstructs streamed assistant replies,
and persists every message locally so transcripts render instantly on
the next start.

Quick Start:
  chatsync sessions              # List your chat sessions
  chatsync new "NDA review"      # Create a session
  chatsync chat <session-id>     # Chat interactively`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file location (default ~/.chatsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
}

// loadConfig resolves the effective configuration for a command run
func loadConfig() (*internal.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = internal.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	return cfg, nil
}

// newEngine builds the wired facade plus a teardown function
func newEngine(events internal.Events) (*internal.ChatFacade, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := internal.OpenTranscriptDB(cfg.TranscriptDBPath())
	if err != nil {
		return nil, nil, err
	}

	api := internal.NewAPIClient(cfg.ServerURL, cfg.APIToken)
	store := internal.NewTranscriptStore(db)
	directory := internal.NewSessionDirectory(api, store, cfg.SessionIndexPath(), cfg.ServerURL)
	facade := internal.NewChatFacade(api, store, directory, events)

	cleanup := func() {
		facade.Close()
		closeDB(db)
	}
	return facade, cleanup, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		internal.LogWarn("Failed to close transcript database: %v", err)
	}
}
