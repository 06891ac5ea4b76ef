package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server and its database are up",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(false)
			if err != nil {
				return err
			}

			status, err := client.health(cmd.Context())
			if err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			fmt.Printf("status: %v\n", status["status"])
			if checks, ok := status["checks"].(map[string]interface{}); ok {
				for name, state := range checks {
					fmt.Printf("  %s: %v\n", name, state)
				}
			}
			return nil
		},
	}
}
