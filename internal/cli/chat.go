package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message and print the reply",
		Long: "Sends one message when given as an argument, or starts an interactive\n" +
			"loop reading messages from stdin. Without --session a fresh session is\n" +
			"created first.",
		Example: `  parleyctl chat "what's the weather like on Mars?"
  parleyctl chat --session 7f8d9c1a "and on Venus?"
  parleyctl chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if sessionID == "" {
				sess, err := client.createSession(ctx, "")
				if err != nil {
					return fmt.Errorf("create session: %w", err)
				}
				sessionID = sess.ID
				fmt.Printf("session %s\n", sessionID)
			}

			if len(args) == 1 {
				return sendOne(cmd, client, sessionID, args[0])
			}

			// Interactive loop until EOF or a blank line.
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}
				if err := sendOne(cmd, client, sessionID, line); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to continue (default: create a new one)")
	return cmd
}

func sendOne(cmd *cobra.Command, client *apiClient, sessionID, message string) error {
	result, err := client.chat(cmd.Context(), sessionID, message)
	if err != nil {
		return err
	}
	fmt.Println(result.Message.Text)
	return nil
}
