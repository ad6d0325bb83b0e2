package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/history"
	"github.com/agentdeck/agentdeck/pkg/publisher/gist"
	"github.com/agentdeck/agentdeck/pkg/redact"
)

var (
	sharePublic     bool
	shareRedactMode string
)

var shareCmd = &cobra.Command{
	Use:   "share <session-id>",
	Short: "Publish a session transcript as a GitHub gist",
	Long: `Publish a session transcript as a GitHub gist.

The transcript is rendered to markdown and passed through the secret
redactor before upload. Requires a GitHub token in AGENTDECK_GITHUB_TOKEN
or GITHUB_TOKEN.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		base, err := agentdeckDir()
		if err != nil {
			return err
		}
		store, err := history.NewStore(filepath.Join(base, "history"))
		if err != nil {
			return err
		}
		defer store.Close()

		msgs, err := store.LoadHistory(cmd.Context(), sessionID)
		if err != nil {
			return err
		}

		var redactor *redact.Redactor
		if shareRedactMode != "" {
			redactor = redact.New(redact.Config{Mode: redact.Mode(shareRedactMode)})
		}
		pub, err := gist.New(cmd.Context(), gist.Config{
			Public:   sharePublic,
			Redactor: redactor,
		})
		if err != nil {
			return err
		}
		url, err := pub.Publish(cmd.Context(), sessionID, msgs)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

func init() {
	shareCmd.Flags().BoolVar(&sharePublic, "public", false, "Create a public gist instead of a secret one")
	shareCmd.Flags().StringVar(&shareRedactMode, "redact", "", "Redaction mode: off, basic, aggressive")
	rootCmd.AddCommand(shareCmd)
}
