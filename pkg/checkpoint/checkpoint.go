// Package checkpoint snapshots a project workspace after agent runs. A
// checkpoint is a commit object held on a ref under refs/agentdeck/, built
// with git stash create so the working tree and index are never touched.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/pkg/config"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/session"
)

const refPrefix = "refs/agentdeck/checkpoints"

// indexFile lives under the repository's git dir, next to the refs it
// describes.
const indexFile = "agentdeck/checkpoints.ndjson"

// Checkpoint is one recorded snapshot.
type Checkpoint struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Ref       string    `json:"ref"`
	Commit    string    `json:"commit"`
	Prompt    string    `json:"prompt"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
}

// Service implements the checkpoint contract consumed by the session
// controller. Settings come from the project's configuration file,
// falling back to the defaults the service was built with.
type Service struct {
	defaults session.CheckpointSettings
	now      func() time.Time
}

// NewService creates a checkpoint service with the given default settings.
func NewService(defaults session.CheckpointSettings) *Service {
	return &Service{defaults: defaults, now: time.Now}
}

// Settings resolves the effective checkpoint settings for a project.
func (s *Service) Settings(_ context.Context, _ string, projectPath string) (session.CheckpointSettings, error) {
	cfg, err := config.Load(projectPath)
	if err != nil {
		return session.CheckpointSettings{}, err
	}
	if cfg.Checkpoints == nil {
		return s.defaults, nil
	}
	return session.CheckpointSettings{
		AutoEnabled: cfg.Checkpoints.AutoEnabled,
		Strategy:    cfg.Checkpoints.Strategy,
	}, nil
}

// Create records a checkpoint for a completed run, subject to the
// project's strategy. Skipped runs are not errors.
func (s *Service) Create(ctx context.Context, req session.CheckpointRequest) error {
	if req.SessionID == "" {
		return errors.New("checkpoint requires a session id")
	}
	settings, err := s.Settings(ctx, req.SessionID, req.ProjectPath)
	if err != nil {
		return err
	}
	if !strategyWants(settings.Strategy, req.ToolsUsed) {
		log.Debug("checkpoint skipped by strategy",
			"session", req.SessionID,
			"strategy", settings.Strategy)
		return nil
	}

	commit, err := snapshotCommit(ctx, req.ProjectPath)
	if err != nil {
		return err
	}

	prior, err := s.List(ctx, req.SessionID, req.ProjectPath)
	if err != nil {
		return err
	}
	seq := len(prior) + 1
	ref := fmt.Sprintf("%s/%s/%d", refPrefix, req.SessionID, seq)
	if _, err := gitOutput(ctx, req.ProjectPath, "update-ref", ref, commit); err != nil {
		return err
	}

	entry := Checkpoint{
		SessionID: req.SessionID,
		Seq:       seq,
		Ref:       ref,
		Commit:    commit,
		Prompt:    req.Prompt,
		Strategy:  settings.Strategy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.appendIndex(ctx, req.ProjectPath, entry); err != nil {
		return err
	}
	log.Info("checkpoint created", "session", req.SessionID, "ref", ref, "commit", commit)
	return nil
}

// List returns the recorded checkpoints for a session, oldest first.
func (s *Service) List(ctx context.Context, sessionID, projectPath string) ([]Checkpoint, error) {
	path, err := s.indexPath(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	all, err := readIndex(path)
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	for _, cp := range all {
		if cp.SessionID == sessionID {
			out = append(out, cp)
		}
	}
	return out, nil
}

// Restore checks a checkpoint's tree out into the working tree. The
// current HEAD is left in place; only tracked files change.
func (s *Service) Restore(ctx context.Context, sessionID, projectPath string, seq int) error {
	ref := fmt.Sprintf("%s/%s/%d", refPrefix, sessionID, seq)
	if _, err := gitOutput(ctx, projectPath, "rev-parse", "--verify", ref); err != nil {
		return fmt.Errorf("checkpoint %d not found for session %s", seq, sessionID)
	}
	if _, err := gitOutput(ctx, projectPath, "checkout", ref, "--", "."); err != nil {
		return err
	}
	log.Info("checkpoint restored", "session", sessionID, "seq", seq)
	return nil
}

// strategyWants decides whether a run's outcome earns a checkpoint.
func strategyWants(strategy string, toolsUsed []string) bool {
	switch strategy {
	case session.StrategyManual:
		return false
	case "", session.StrategyPerPrompt:
		return true
	case session.StrategyPerToolUse:
		return len(toolsUsed) > 0
	case session.StrategySmart:
		for _, tool := range toolsUsed {
			if mutatingTools[strings.ToLower(tool)] {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// mutatingTools are the agent tools that change files on disk; the smart
// strategy only checkpoints runs that used one.
var mutatingTools = map[string]bool{
	"edit":         true,
	"multiedit":    true,
	"write":        true,
	"notebookedit": true,
	"bash":         true,
}

// snapshotCommit produces a commit covering the current working tree
// without touching it: git stash create when the tree is dirty, HEAD when
// it is clean.
func snapshotCommit(ctx context.Context, projectPath string) (string, error) {
	stash, err := gitOutput(ctx, projectPath, "stash", "create")
	if err != nil {
		return "", err
	}
	if stash != "" {
		return stash, nil
	}
	head, err := gitOutput(ctx, projectPath, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", errors.New("nothing to checkpoint: clean tree with no commits")
	}
	return head, nil
}

func (s *Service) indexPath(ctx context.Context, projectPath string) (string, error) {
	gitDir, err := gitOutput(ctx, projectPath, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, filepath.FromSlash(indexFile)), nil
}

func (s *Service) appendIndex(ctx context.Context, projectPath string, entry Checkpoint) error {
	path, err := s.indexPath(ctx, projectPath)
	if err != nil {
		return err
	}
	return appendEntry(path, entry)
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return strings.TrimSpace(string(out)), nil
}
