package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/checkpoint"
	"github.com/agentdeck/agentdeck/pkg/session"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and restore workspace checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List checkpoints recorded for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := checkpoint.NewService(session.CheckpointSettings{})
		cps, err := svc.List(cmd.Context(), args[0], projectPath)
		if err != nil {
			return err
		}
		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}
		for _, cp := range cps {
			prompt := cp.Prompt
			if len(prompt) > 60 {
				prompt = prompt[:57] + "..."
			}
			fmt.Printf("%3d  %s  %.12s  %s\n", cp.Seq, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Commit, prompt)
		}
		return nil
	},
}

var checkpointsRestoreCmd = &cobra.Command{
	Use:   "restore <session-id> <seq>",
	Short: "Restore the working tree to a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid checkpoint number %q", args[1])
		}
		svc := checkpoint.NewService(session.CheckpointSettings{})
		return svc.Restore(cmd.Context(), args[0], projectPath, seq)
	},
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsRestoreCmd)
	rootCmd.AddCommand(checkpointsCmd)
}
