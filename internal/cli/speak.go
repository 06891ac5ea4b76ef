package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSpeakCmd() *cobra.Command {
	var (
		output  string
		voiceID string
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize speech and save the audio clip",
		Example: `  parleyctl speak "hello world" -o hello.mp3
  parleyctl speak "bonjour" --voice voice-fr -o bonjour.mp3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(true)
			if err != nil {
				return err
			}

			data, contentType, err := client.speak(cmd.Context(), args[0], voiceID)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Printf("wrote %d bytes (%s) to %s\n", len(data), contentType, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "speech.mp3", "output file")
	cmd.Flags().StringVar(&voiceID, "voice", "", "voice id override")
	return cmd
}
