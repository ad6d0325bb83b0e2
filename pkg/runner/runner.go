// Package runner launches the agent CLI locally and bridges its
// stream-json output onto the event bus. One Runner manages any number of
// concurrent runs, each backed by its own process.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/session"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

const (
	// DefaultBinary is the agent CLI executable looked up on PATH.
	DefaultBinary = "claude"

	// Stream lines can carry whole file contents inside tool results.
	maxLineSize = 10 * 1024 * 1024

	defaultStatsInterval = 5 * time.Second
)

// Config configures a Runner. Bus is required.
type Config struct {
	// Binary is the agent CLI executable; DefaultBinary when empty.
	Binary string
	// Args are extra arguments appended to every invocation.
	Args []string
	Bus  bus.Bus
	// Observer receives process stats samples while runs are active.
	Observer session.Observer
	// StatsInterval controls sampling frequency; defaultStatsInterval
	// when zero. Sampling only happens when Observer is set.
	StatsInterval time.Duration
}

// Runner implements the process control contract against a locally
// installed agent CLI.
type Runner struct {
	binary        string
	extraArgs     []string
	bus           bus.Bus
	observer      session.Observer
	statsInterval time.Duration

	mu   sync.Mutex
	runs map[string]*run // keyed by session id once known
}

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Bus == nil {
		return nil, errors.New("runner requires a bus")
	}
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	obs := cfg.Observer
	if obs == nil {
		obs = session.NopObserver{}
	}
	interval := cfg.StatsInterval
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &Runner{
		binary:        binary,
		extraArgs:     cfg.Args,
		bus:           cfg.Bus,
		observer:      obs,
		statsInterval: interval,
		runs:          map[string]*run{},
	}, nil
}

// run is one live agent process.
type run struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc

	mu        sync.Mutex
	sessionID string // resume hint, or learned from the init line
}

func (r *run) id() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *run) setID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// channel returns the scoped channel name once the session id is known,
// the generic name before that.
func (r *run) channel(generic string) string {
	id := r.id()
	if id == "" {
		return generic
	}
	return bus.Scoped(generic, id)
}

// StartRun spawns a fresh agent process for a new session. It returns once
// the process is started; output flows through the bus asynchronously.
func (r *Runner) StartRun(ctx context.Context, projectPath, prompt, model string) error {
	return r.launch(ctx, projectPath, "", prompt, model)
}

// ResumeRun spawns an agent process continuing a known session.
func (r *Runner) ResumeRun(ctx context.Context, projectPath, sessionID, prompt, model string) error {
	if sessionID == "" {
		return errors.New("resume requires a session id")
	}
	return r.launch(ctx, projectPath, sessionID, prompt, model)
}

// CancelRun stops the process serving the given session. The process is
// interrupted first and killed if it lingers; the completion event is
// published by the normal exit path.
func (r *Runner) CancelRun(_ context.Context, sessionID string) error {
	r.mu.Lock()
	active, ok := r.runs[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active run for session %s", sessionID)
	}

	if proc := active.cmd.Process; proc != nil {
		if err := proc.Signal(os.Interrupt); err != nil {
			active.cancel()
			return fmt.Errorf("interrupt agent process: %w", err)
		}
	}
	// Escalate if the process ignores the interrupt.
	go func() {
		timer := time.NewTimer(5 * time.Second)
		defer timer.Stop()
		<-timer.C
		active.cancel()
	}()
	return nil
}

// launch starts the process detached from the caller's context: the run
// outlives the call and ends via CancelRun or process exit.
func (r *Runner) launch(_ context.Context, projectPath, sessionID, prompt, model string) error {
	args := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	args = append(args, r.extraArgs...)

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, r.binary, args...)
	cmd.Dir = projectPath
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", r.binary, err)
	}
	active := &run{cmd: cmd, cancel: cancel, sessionID: sessionID}
	if sessionID != "" {
		r.register(sessionID, active)
	}
	log.Info("agent process started",
		"pid", cmd.Process.Pid,
		"project", projectPath,
		"session", sessionID)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		r.scanOutput(active, stdout)
	}()
	go func() {
		defer readers.Done()
		r.scanErrors(active, stderr)
	}()
	go r.sampleStats(procCtx, cmd.Process.Pid)
	go r.wait(active, &readers)
	return nil
}

// scanOutput forwards each stdout line to the output channel. Lines are
// published generic until the init line names the session, scoped after.
func (r *Runner) scanOutput(active *run, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)

		channel := active.channel(bus.ChannelOutput)
		r.bus.Publish(channel, payload)

		if active.id() == "" {
			if msg, err := stream.Parse(payload); err == nil &&
				msg.Type == stream.TypeSystem && msg.Subtype == stream.SubtypeInit && msg.SessionID != "" {
				active.setID(msg.SessionID)
				r.register(msg.SessionID, active)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("agent stdout closed with error", "error", err)
	}
}

func (r *Runner) scanErrors(active *run, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		log.Debug("agent stderr", "line", line)
		r.bus.Publish(active.channel(bus.ChannelError), []byte(line))
	}
}

func (r *Runner) wait(active *run, readers *sync.WaitGroup) {
	readers.Wait()
	err := active.cmd.Wait()
	active.cancel()

	if id := active.id(); id != "" {
		r.mu.Lock()
		if r.runs[id] == active {
			delete(r.runs, id)
		}
		r.mu.Unlock()
	}

	success := err == nil
	if err != nil {
		log.Info("agent process exited", "error", err)
	}
	payload := "false"
	if success {
		payload = "true"
	}
	r.bus.Publish(active.channel(bus.ChannelComplete), []byte(payload))
}

func (r *Runner) register(sessionID string, active *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.runs[sessionID]; ok && prev != active {
		log.Warn("replacing tracked run for session", "session", sessionID)
	}
	r.runs[sessionID] = active
}

// Active reports whether a process is currently tracked for the session.
func (r *Runner) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[sessionID]
	return ok
}
