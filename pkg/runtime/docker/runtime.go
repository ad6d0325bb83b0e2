// Package docker runs the agent CLI inside a container. It implements the
// same process control and event channel contract as the local runner, so
// the session controller cannot tell the two apart.
package docker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

const workspaceTarget = "/workspace"

// Config configures a Runtime. Image and Bus are required.
type Config struct {
	// Image is the container image carrying the agent CLI.
	Image string
	// Binary is the agent CLI inside the image; "claude" when empty.
	Binary string
	// Args are extra arguments appended to every invocation.
	Args []string
	// Pull pulls the image before the first run.
	Pull bool
	Bus  bus.Bus
}

// Runtime executes agent runs as containers.
type Runtime struct {
	cli    *client.Client
	image  string
	binary string
	extra  []string
	pull   bool
	bus    bus.Bus

	mu     sync.Mutex
	pulled bool
	runs   map[string]*containerRun // keyed by session id once known
}

// containerRun tracks one live container.
type containerRun struct {
	id string

	mu        sync.Mutex
	sessionID string
}

func (c *containerRun) sid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *containerRun) setSID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *containerRun) channel(generic string) string {
	id := c.sid()
	if id == "" {
		return generic
	}
	return bus.Scoped(generic, id)
}

// New creates a Runtime talking to the local docker daemon.
func New(cfg Config) (*Runtime, error) {
	if cfg.Image == "" {
		return nil, errors.New("docker runtime requires an image")
	}
	if cfg.Bus == nil {
		return nil, errors.New("docker runtime requires a bus")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "claude"
	}
	return &Runtime{
		cli:    cli,
		image:  cfg.Image,
		binary: binary,
		extra:  cfg.Args,
		pull:   cfg.Pull,
		bus:    cfg.Bus,
		runs:   map[string]*containerRun{},
	}, nil
}

// StartRun launches a container for a new session.
func (r *Runtime) StartRun(ctx context.Context, projectPath, prompt, model string) error {
	return r.launch(ctx, projectPath, "", prompt, model)
}

// ResumeRun launches a container continuing a known session.
func (r *Runtime) ResumeRun(ctx context.Context, projectPath, sessionID, prompt, model string) error {
	if sessionID == "" {
		return errors.New("resume requires a session id")
	}
	return r.launch(ctx, projectPath, sessionID, prompt, model)
}

// CancelRun stops the container serving the session. The completion event
// is published by the wait path once the container exits.
func (r *Runtime) CancelRun(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	run, ok := r.runs[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active run for session %s", sessionID)
	}
	timeout := 5
	if err := r.cli.ContainerStop(ctx, run.id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	return nil
}

func (r *Runtime) launch(ctx context.Context, projectPath, sessionID, prompt, model string) error {
	if err := r.ensureImage(ctx); err != nil {
		return err
	}

	cmd := []string{r.binary, "-p", prompt, "--output-format", "stream-json", "--verbose"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	if sessionID != "" {
		cmd = append(cmd, "--resume", sessionID)
	}
	cmd = append(cmd, r.extra...)

	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:      r.image,
		Cmd:        cmd,
		Env:        []string{"IS_SANDBOX=1"},
		WorkingDir: workspaceTarget,
		Tty:        false,
	}, &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: projectPath,
			Target: workspaceTarget,
		}},
	}, nil, nil, "")
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("start container: %w", err)
	}

	run := &containerRun{id: resp.ID, sessionID: sessionID}
	if sessionID != "" {
		r.register(sessionID, run)
	}
	log.Info("agent container started", "container", resp.ID[:12], "session", sessionID)

	go r.stream(run)
	return nil
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	r.mu.Lock()
	need := r.pull && !r.pulled
	r.mu.Unlock()
	if !need {
		return nil
	}
	reader, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", r.image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)

	r.mu.Lock()
	r.pulled = true
	r.mu.Unlock()
	return nil
}

// stream demultiplexes container logs onto the event channels and
// publishes the completion flag once the container exits.
func (r *Runtime) stream(run *containerRun) {
	ctx := context.Background()
	logs, err := r.cli.ContainerLogs(ctx, run.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		log.Error("container logs unavailable", "container", run.id[:12], "error", err)
		r.finish(run, false)
		return
	}
	defer logs.Close()

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		r.scanOutput(run, outR)
	}()
	go func() {
		defer readers.Done()
		r.scanErrors(run, errR)
	}()

	_, copyErr := stdcopy.StdCopy(outW, errW, logs)
	_ = outW.CloseWithError(copyErr)
	_ = errW.CloseWithError(copyErr)
	readers.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	success := false
	statusCh, errCh := r.cli.ContainerWait(waitCtx, run.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		log.Warn("container wait failed", "container", run.id[:12], "error", err)
	case status := <-statusCh:
		success = status.StatusCode == 0
	}
	_ = r.cli.ContainerRemove(ctx, run.id, container.RemoveOptions{Force: true})
	r.finish(run, success)
}

func (r *Runtime) scanOutput(run *containerRun, src io.Reader) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		r.bus.Publish(run.channel(bus.ChannelOutput), payload)

		if run.sid() == "" {
			if msg, err := stream.Parse(payload); err == nil &&
				msg.Type == stream.TypeSystem && msg.Subtype == stream.SubtypeInit && msg.SessionID != "" {
				run.setSID(msg.SessionID)
				r.register(msg.SessionID, run)
			}
		}
	}
}

func (r *Runtime) scanErrors(run *containerRun, src io.Reader) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			r.bus.Publish(run.channel(bus.ChannelError), []byte(line))
		}
	}
}

func (r *Runtime) finish(run *containerRun, success bool) {
	if id := run.sid(); id != "" {
		r.mu.Lock()
		if r.runs[id] == run {
			delete(r.runs, id)
		}
		r.mu.Unlock()
	}
	payload := "false"
	if success {
		payload = "true"
	}
	r.bus.Publish(run.channel(bus.ChannelComplete), []byte(payload))
}

func (r *Runtime) register(sessionID string, run *containerRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.runs[sessionID]; ok && prev != run {
		log.Warn("replacing tracked container for session", "session", sessionID)
	}
	r.runs[sessionID] = run
}
