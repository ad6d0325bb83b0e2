package session

import (
	"context"

	"github.com/agentdeck/agentdeck/pkg/log"
)

// Checkpoint strategies understood by the checkpoint service.
const (
	StrategyManual     = "manual"
	StrategyPerPrompt  = "per_prompt"
	StrategyPerToolUse = "per_tool_use"
	StrategySmart      = "smart"
)

// CheckpointSettings gates automatic checkpoint creation for a project.
type CheckpointSettings struct {
	AutoEnabled bool
	Strategy    string
}

// CheckpointRequest describes a completed run for the checkpoint service's
// strategy logic.
type CheckpointRequest struct {
	SessionID   string
	ProjectPath string
	Prompt      string
	ToolsUsed   []string
}

// CheckpointService is the collaborator that owns checkpoint settings and
// creates workspace snapshots.
type CheckpointService interface {
	Settings(ctx context.Context, sessionID, projectPath string) (CheckpointSettings, error)
	Create(ctx context.Context, req CheckpointRequest) error
}

// CheckpointCoordinator decides whether a successful run earns a
// checkpoint. Checkpointing is best effort: every failure is logged and
// none is surfaced to the run.
type CheckpointCoordinator struct {
	service CheckpointService
}

// NewCheckpointCoordinator wraps a checkpoint service; svc may be nil, in
// which case the coordinator never checkpoints.
func NewCheckpointCoordinator(svc CheckpointService) *CheckpointCoordinator {
	return &CheckpointCoordinator{service: svc}
}

// MaybeCheckpoint requests a checkpoint for a successfully completed run.
// No-op when auto checkpointing is disabled for the project.
func (c *CheckpointCoordinator) MaybeCheckpoint(ctx context.Context, req CheckpointRequest) {
	if c == nil || c.service == nil {
		return
	}
	settings, err := c.service.Settings(ctx, req.SessionID, req.ProjectPath)
	if err != nil {
		log.Warn("checkpoint settings unavailable", "session", req.SessionID, "error", err)
		return
	}
	if !settings.AutoEnabled {
		return
	}
	if err := c.service.Create(ctx, req); err != nil {
		log.Warn("checkpoint failed", "session", req.SessionID, "error", err)
	}
}
