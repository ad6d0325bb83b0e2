package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/history"
	"github.com/agentdeck/agentdeck/pkg/session"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id> [prompt]",
	Short: "Continue a previous session, optionally sending a new prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		prompt := strings.Join(args[1:], " ")
		if prompt == "" {
			return showHistory(cmd.Context(), sessionID)
		}
		return runSession(cmd.Context(), sessionID, prompt)
	},
}

// showHistory prints the stored transcript without starting a run.
func showHistory(ctx context.Context, sessionID string) error {
	base, err := agentdeckDir()
	if err != nil {
		return err
	}
	store, err := history.NewStore(filepath.Join(base, "history"))
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.LoadHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no history for session %s", sessionID)
	}
	p := &printer{}
	for _, msg := range msgs {
		p.OnEvent(session.EventMessageAppended, msg)
	}
	return nil
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions with stored history",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := agentdeckDir()
		if err != nil {
			return err
		}
		store, err := history.NewStore(filepath.Join(base, "history"))
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.Sessions()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	resumeCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model selector for this prompt")
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
}
