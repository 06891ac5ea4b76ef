package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTalkCmd() *cobra.Command {
	var (
		sourceURL string
		voiceID   string
	)

	cmd := &cobra.Command{
		Use:   "talk <text>",
		Short: "Generate a talking-avatar video clip",
		Long: "Submits an avatar talk and waits for the video. The server polls the\n" +
			"avatar provider and answers once the clip is ready, so this can take a\n" +
			"few minutes.",
		Example: `  parleyctl talk "welcome to the show"
  parleyctl talk "hi" --source-url https://img.example/me.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			fmt.Println("generating, this can take a while...")
			talk, err := client.talk(cmd.Context(), args[0], sourceURL, voiceID)
			if err != nil {
				return err
			}

			fmt.Printf("talk %s: %s\n", talk.ID, talk.Status)
			fmt.Println(talk.ResultURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceURL, "source-url", "", "presenter image URL override")
	cmd.Flags().StringVar(&voiceID, "voice", "", "voice id override")
	return cmd
}
