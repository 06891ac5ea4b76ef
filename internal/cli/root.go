// Package cli implements the parleyctl command tree.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	userID    string
	timeout   time.Duration
)

// Execute is the main entry point called from main.go.
func Execute() {
	rootCmd := &cobra.Command{
		Use:   "parleyctl",
		Short: "Terminal client for a parley server",
		Long: "parleyctl drives a running parley server from the terminal: manage chat\n" +
			"sessions, send messages, and generate speech or avatar clips.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("PARLEY_SERVER", "http://localhost:8080"), "base URL of the parley server")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", envOr("PARLEY_USER", ""), "user identity to act as")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall per-request timeout")

	// Subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newSpeakCmd())
	rootCmd.AddCommand(newTalkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
