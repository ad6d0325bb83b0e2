package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/checkpoint"
	"github.com/agentdeck/agentdeck/pkg/config"
	"github.com/agentdeck/agentdeck/pkg/history"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/metrics"
	"github.com/agentdeck/agentdeck/pkg/runner"
	"github.com/agentdeck/agentdeck/pkg/runtime/docker"
	"github.com/agentdeck/agentdeck/pkg/session"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

var runModel string

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run a prompt against the agent in the current project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), "", strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model selector for this prompt")
	rootCmd.AddCommand(runCmd)
}

func agentdeckDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".agentdeck"), nil
}

// buildProcessClient selects the process runtime from configuration.
func buildProcessClient(cfg config.Config, b bus.Bus, obs session.Observer) (session.ProcessClient, error) {
	switch cfg.Agent.Runtime {
	case config.RuntimeDocker:
		return docker.New(docker.Config{
			Image:  cfg.Agent.Image,
			Binary: cfg.Agent.Binary,
			Args:   cfg.Agent.Args,
			Bus:    b,
		})
	default:
		return runner.New(runner.Config{
			Binary:   cfg.Agent.Binary,
			Args:     cfg.Agent.Args,
			Bus:      b,
			Observer: obs,
		})
	}
}

// printer writes displayable messages to stdout as they append.
type printer struct {
	mu    sync.Mutex
	prior []stream.Message
}

func (p *printer) OnEvent(kind string, payload interface{}) {
	if kind != session.EventMessageAppended {
		return
	}
	msg, ok := payload.(stream.Message)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if stream.Displayable(msg, p.prior) {
		printMessage(msg)
	}
	p.prior = append(p.prior, msg)
}

func printMessage(msg stream.Message) {
	text := msg.Text()
	switch msg.Type {
	case stream.TypeUser:
		if text != "" {
			fmt.Printf("> %s\n", text)
		}
	case stream.TypeAssistant:
		if text != "" {
			fmt.Println(text)
		}
		for _, name := range msg.ToolUses() {
			fmt.Printf("  [tool] %s\n", name)
		}
	case stream.TypeResult:
		if text != "" {
			fmt.Printf("-- %s\n", text)
		}
	case stream.TypeSystem:
		if msg.Subtype != stream.SubtypeInit && text != "" {
			fmt.Printf("** %s\n", text)
		}
	}
}

// waiter signals the first terminal run event.
type waiter struct {
	done chan string
}

func newWaiter() *waiter {
	return &waiter{done: make(chan string, 1)}
}

func (w *waiter) OnEvent(kind string, _ interface{}) {
	switch kind {
	case session.EventRunCompleted, session.EventRunFailed, session.EventRunCancelled:
		select {
		case w.done <- kind:
		default:
		}
	}
}

func runSession(ctx context.Context, sessionID, prompt string) error {
	base, err := agentdeckDir()
	if err != nil {
		return err
	}
	store, err := history.NewStore(filepath.Join(base, "history"))
	if err != nil {
		return err
	}
	defer store.Close()

	sink, err := metrics.NewSink(filepath.Join(base, "metrics", "events.ndjson"))
	if err != nil {
		return err
	}
	defer sink.Close()

	w := newWaiter()
	observers := session.MultiObserver{
		history.NewRecorder(store, sessionID),
		sink,
		w,
		&printer{},
	}

	b := bus.NewMemoryBus()
	proc, err := buildProcessClient(loadedConfig, b, observers)
	if err != nil {
		return err
	}

	var defaults session.CheckpointSettings
	if cp := loadedConfig.Checkpoints; cp != nil {
		defaults = session.CheckpointSettings{AutoEnabled: cp.AutoEnabled, Strategy: cp.Strategy}
	}

	ctrl, err := session.NewController(session.ControllerConfig{
		ProjectPath: projectPath,
		SessionID:   sessionID,
		Model:       loadedConfig.Agent.Model,
		Bus:         b,
		Process:     proc,
		Checkpoints: checkpoint.NewService(defaults),
		History:     store,
		Observer:    observers,
	})
	if err != nil {
		return err
	}

	if sessionID != "" {
		if err := ctrl.PreloadHistory(ctx); err != nil {
			return err
		}
		for _, msg := range ctrl.Displayable() {
			printMessage(msg)
		}
	}

	if err := ctrl.Submit(ctx, prompt, runModel); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	for {
		select {
		case <-sigs:
			log.Info("interrupt received, cancelling run")
			if err := ctrl.Cancel(ctx); err != nil {
				return err
			}
		case kind := <-w.done:
			if kind == session.EventRunFailed {
				if msg := ctrl.LastError(); msg != "" {
					return errors.New(msg)
				}
				return errors.New("run failed")
			}
			if id := ctrl.SessionID(); id != "" {
				fmt.Printf("session: %s\n", id)
			}
			return nil
		}
	}
}
