package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// ProcessClient drives the external agent process. Implementations must
// return promptly from StartRun and ResumeRun and deliver all subsequent
// events asynchronously through the bus; delivering synchronously from
// inside these calls would deadlock the controller.
type ProcessClient interface {
	StartRun(ctx context.Context, projectPath, prompt, model string) error
	ResumeRun(ctx context.Context, projectPath, sessionID, prompt, model string) error
	CancelRun(ctx context.Context, sessionID string) error
}

// HistoryService loads the prior transcript of a resumed session.
type HistoryService interface {
	LoadHistory(ctx context.Context, sessionID string) ([]stream.Message, error)
}

// ControllerConfig wires a controller to its collaborators. Bus and
// Process are required; the rest are optional.
type ControllerConfig struct {
	ProjectPath string
	// SessionID resumes a known session when non-empty.
	SessionID string
	// Model is the default model selector for submitted prompts.
	Model       string
	Bus         bus.Bus
	Process     ProcessClient
	Checkpoints CheckpointService
	History     HistoryService
	Observer    Observer
}

// Controller runs the session state machine: idle, running, cancelling.
// It owns the message log and the execution state exclusively; all event
// handlers funnel through its mutex, so log appends keep strict arrival
// order.
type Controller struct {
	mu sync.Mutex

	projectPath string
	model       string
	bus         bus.Bus
	process     ProcessClient
	coordinator *CheckpointCoordinator
	history     HistoryService
	observer    Observer

	state    State
	session  Session
	resolver *Resolver
	mux      *Multiplexer
	queue    *PromptQueue

	entries []stream.Message

	// per-run bookkeeping
	runCtx       context.Context
	activePrompt string
	toolsUsed    []string
	runError     string
	lastError    string
}

// NewController creates a controller in the idle state.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Bus == nil {
		return nil, errors.New("controller requires a bus")
	}
	if cfg.Process == nil {
		return nil, errors.New("controller requires a process client")
	}
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	c := &Controller{
		projectPath: cfg.ProjectPath,
		model:       cfg.Model,
		bus:         cfg.Bus,
		process:     cfg.Process,
		coordinator: NewCheckpointCoordinator(cfg.Checkpoints),
		history:     cfg.History,
		observer:    obs,
		state:       StateIdle,
		resolver:    NewResolver(cfg.SessionID, obs),
		queue:       NewPromptQueue(),
		runCtx:      context.Background(),
		session: Session{
			ID:          cfg.SessionID,
			ProjectPath: cfg.ProjectPath,
			Resumed:     cfg.SessionID != "",
		},
	}
	return c, nil
}

// PreloadHistory seeds the log with the prior transcript of a resumed
// session. Must be called before the first Submit.
func (c *Controller) PreloadHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return errors.New("cannot preload history during a run")
	}
	id, confirmed := c.resolver.ID()
	if !confirmed || c.history == nil {
		return nil
	}
	msgs, err := c.history.LoadHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	// Prior entries are already persisted; append without mirroring.
	c.entries = append(c.entries, msgs...)
	return nil
}

// Submit starts a run with the given prompt, or enqueues it when a run is
// already in flight. model overrides the controller default when non-empty.
func (c *Controller) Submit(ctx context.Context, text, model string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty prompt")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRunning, StateCancelling:
		item := c.queue.Enqueue(text, model)
		log.Debug("prompt queued", "id", item.ID, "queued", c.queue.Len())
		c.observer.OnEvent(EventPromptQueued, item)
		return nil
	default:
		c.runCtx = ctx
		return c.startLocked(ctx, text, model)
	}
}

// Cancel aborts the run in flight. It is idempotent; cancelling while idle
// is a no-op. The cancel request is best effort: even when the request to
// the process fails, subscriptions are released, the queue is cleared, and
// the controller returns to idle.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return nil
	}
	c.setStateLocked(StateCancelling)

	var ipcErr error
	if id, confirmed := c.resolver.ID(); confirmed {
		ipcErr = c.process.CancelRun(ctx, id)
	} else {
		log.Debug("cancelling run with unresolved session id")
	}

	c.mux.Close()
	c.mux = nil
	c.queue.Clear()
	c.appendLocked(stream.NewSystemMessage(stream.SubtypeCancelled, "Run cancelled"))
	if ipcErr != nil {
		log.Warn("cancel request failed", "error", ipcErr)
		c.appendLocked(stream.NewSystemMessage(stream.SubtypeError,
			"cancel request failed: "+ipcErr.Error()))
	}
	c.setStateLocked(StateIdle)
	c.observer.OnEvent(EventRunCancelled, c.session.ID)
	return nil
}

// startLocked transitions idle -> running. Caller holds c.mu.
func (c *Controller) startLocked(ctx context.Context, text, model string) error {
	if model == "" {
		model = c.model
	}
	mux := NewMultiplexer(c.bus, ChannelHandlers{
		Output:   c.handleOutput,
		Error:    c.handleError,
		Complete: c.handleComplete,
	})
	if err := mux.OpenGeneric(); err != nil {
		err = fmt.Errorf("open event channels: %w", err)
		c.surfaceRunErrorLocked(err)
		return err
	}
	c.mux = mux

	// Optimistic append: the user's prompt lands in the log before the
	// process echoes anything back.
	c.appendLocked(stream.NewUserMessage(text))
	c.activePrompt = text
	c.toolsUsed = nil
	c.runError = ""
	c.lastError = ""
	c.setStateLocked(StateRunning)

	id, confirmed := c.resolver.ID()
	if confirmed {
		if err := mux.Upgrade(id); err != nil {
			err = fmt.Errorf("open session channels: %w", err)
			c.abortRunLocked(err)
			return err
		}
	}

	var err error
	if confirmed {
		err = c.process.ResumeRun(ctx, c.projectPath, id, text, model)
	} else {
		err = c.process.StartRun(ctx, c.projectPath, text, model)
	}
	if err != nil {
		// The prompt is not re-queued; the user retries explicitly.
		err = fmt.Errorf("start run: %w", err)
		c.abortRunLocked(err)
		return err
	}

	c.observer.OnEvent(EventRunStarted, map[string]string{
		"session": id,
		"model":   model,
	})
	return nil
}

// abortRunLocked tears a failed run down to idle. Caller holds c.mu.
func (c *Controller) abortRunLocked(err error) {
	c.mux.Close()
	c.mux = nil
	c.surfaceRunErrorLocked(err)
}

func (c *Controller) surfaceRunErrorLocked(err error) {
	log.Error("run failed", "error", err)
	c.lastError = err.Error()
	c.appendLocked(stream.NewSystemMessage(stream.SubtypeError, err.Error()))
	c.setStateLocked(StateIdle)
	c.observer.OnEvent(EventRunFailed, err.Error())
}

func (c *Controller) handleOutput(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return // stale delivery after completion or cancel
	}
	msg, err := stream.Parse(payload)
	if err != nil {
		log.Warn("dropping malformed agent output", "error", err)
		c.observer.OnEvent(EventParseError, err.Error())
		return
	}
	c.appendLocked(msg)
	c.toolsUsed = append(c.toolsUsed, msg.ToolUses()...)

	id, confirmedNow := c.resolver.Observe(msg)
	if confirmedNow {
		c.session.ID = id
		if err := c.mux.Upgrade(id); err != nil {
			c.abortRunLocked(fmt.Errorf("open session channels: %w", err))
		}
	}
}

func (c *Controller) handleError(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return
	}
	c.runError = text
	c.appendLocked(stream.NewSystemMessage(stream.SubtypeError, text))
}

func (c *Controller) handleComplete(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return // cancelled runs end through Cancel
	}
	prompt := c.activePrompt
	tools := c.toolsUsed
	c.mux.Close()
	c.mux = nil
	c.setStateLocked(StateIdle)

	if !success {
		// Error completion: the queue stays intact so the user can retry
		// or cancel explicitly.
		c.lastError = c.runError
		if c.lastError == "" {
			c.lastError = "run failed"
		}
		c.observer.OnEvent(EventRunFailed, c.lastError)
		return
	}

	c.observer.OnEvent(EventRunCompleted, c.session.ID)
	c.coordinator.MaybeCheckpoint(c.runCtx, CheckpointRequest{
		SessionID:   c.session.ID,
		ProjectPath: c.projectPath,
		Prompt:      prompt,
		ToolsUsed:   tools,
	})

	if next, ok := c.queue.Dequeue(); ok {
		if err := c.startLocked(c.runCtx, next.Text, next.Model); err != nil {
			log.Error("queued prompt failed to start", "id", next.ID, "error", err)
		}
	}
}

func (c *Controller) appendLocked(msg stream.Message) {
	c.entries = append(c.entries, msg)
	c.observer.OnEvent(EventMessageAppended, msg)
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	log.Debug("state transition", "from", string(c.state), "to", string(next))
	c.state = next
	c.observer.OnEvent(EventStateChanged, string(next))
}

// State returns the current execution state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id, empty until confirmed.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, confirmed := c.resolver.ID()
	if !confirmed {
		return ""
	}
	return id
}

// Messages returns a copy of the full message log in arrival order.
func (c *Controller) Messages() []stream.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]stream.Message, len(c.entries))
	copy(out, c.entries)
	return out
}

// Displayable returns the log filtered down to UI-eligible messages.
func (c *Controller) Displayable() []stream.Message {
	return stream.Filter(c.Messages())
}

// QueueLen returns the number of prompts waiting behind the current run.
func (c *Controller) QueueLen() int {
	return c.queue.Len()
}

// LastError returns the most recent run-level error, empty when the last
// run succeeded.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}
