package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsCreateCmd())
	cmd.AddCommand(newSessionsRenameCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsShowCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			sessions, err := client.listSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, sess := range sessions {
				fmt.Printf("%s  %-30s  updated %s\n",
					sess.ID, sess.Title, sess.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newSessionsCreateCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			sess, err := client.createSession(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Printf("created %s (%s)\n", sess.ID, sess.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "session title")
	return cmd
}

func newSessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			sess, err := client.renameSession(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("renamed %s to %q\n", sess.ID, sess.Title)
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			result, err := client.deleteSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("deleted session (%d messages removed)\n", result.MessagesDeleted)
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			msgs, err := client.listMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("empty transcript")
				return nil
			}
			for _, msg := range msgs {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Text)
			}
			return nil
		},
	}
}
