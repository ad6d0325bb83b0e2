package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/session"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// collector gathers published payloads per channel.
type collector struct {
	mu       sync.Mutex
	payloads map[string][]string
	complete chan string
}

func newCollector(t *testing.T, b bus.Bus, channels ...string) *collector {
	t.Helper()
	c := &collector{payloads: map[string][]string{}, complete: make(chan string, 4)}
	for _, channel := range channels {
		channel := channel
		_, err := b.Subscribe(channel, func(p []byte) {
			c.mu.Lock()
			c.payloads[channel] = append(c.payloads[channel], string(p))
			c.mu.Unlock()
			if channel == bus.ChannelComplete || channel == bus.Scoped(bus.ChannelComplete, "s1") {
				c.complete <- string(p)
			}
		})
		if err != nil {
			t.Fatalf("subscribe %s: %v", channel, err)
		}
	}
	return c
}

func (c *collector) get(channel string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.payloads[channel]))
	copy(out, c.payloads[channel])
	return out
}

func (c *collector) waitComplete(t *testing.T) string {
	t.Helper()
	select {
	case v := <-c.complete:
		return v
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for completion event")
		return ""
	}
}

func TestRunner_PublishesGenericThenScoped(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system","subtype":"init","session_id":"s1"}'
echo '{"type":"assistant","session_id":"s1","message":{"content":[{"type":"text","text":"hi"}]}}'
`)
	b := bus.NewMemoryBus()
	c := newCollector(t, b,
		bus.ChannelOutput,
		bus.Scoped(bus.ChannelOutput, "s1"),
		bus.ChannelComplete,
		bus.Scoped(bus.ChannelComplete, "s1"),
	)

	r, err := New(Config{Binary: script, Bus: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.StartRun(context.Background(), t.TempDir(), "hello", ""); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	if got := c.waitComplete(t); got != "true" {
		t.Fatalf("expected success completion, got %q", got)
	}

	generic := c.get(bus.ChannelOutput)
	scoped := c.get(bus.Scoped(bus.ChannelOutput, "s1"))
	if len(generic) != 1 {
		t.Fatalf("expected only the init line on the generic channel, got %v", generic)
	}
	if len(scoped) != 1 {
		t.Fatalf("expected the second line scoped, got %v", scoped)
	}
	// Completion goes scoped once the id is known.
	if got := c.get(bus.Scoped(bus.ChannelComplete, "s1")); len(got) != 1 {
		t.Fatalf("expected scoped completion, got %v", got)
	}
}

func TestRunner_StderrAndFailureExit(t *testing.T) {
	script := writeScript(t, `
echo "something broke" >&2
exit 3
`)
	b := bus.NewMemoryBus()
	c := newCollector(t, b, bus.ChannelError, bus.ChannelComplete)

	r, err := New(Config{Binary: script, Bus: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.StartRun(context.Background(), t.TempDir(), "hello", ""); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	if got := c.waitComplete(t); got != "false" {
		t.Fatalf("expected failure completion, got %q", got)
	}
	errs := c.get(bus.ChannelError)
	if len(errs) != 1 || errs[0] != "something broke" {
		t.Fatalf("unexpected error payloads: %v", errs)
	}
}

func TestRunner_CancelStopsResumedRun(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system","subtype":"init","session_id":"s1"}'
exec sleep 60
`)
	b := bus.NewMemoryBus()
	c := newCollector(t, b, bus.Scoped(bus.ChannelComplete, "s1"))

	r, err := New(Config{Binary: script, Bus: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.ResumeRun(context.Background(), t.TempDir(), "s1", "hello", ""); err != nil {
		t.Fatalf("ResumeRun failed: %v", err)
	}
	if !r.Active("s1") {
		t.Fatal("resumed run not tracked under its session id")
	}
	if err := r.CancelRun(context.Background(), "s1"); err != nil {
		t.Fatalf("CancelRun failed: %v", err)
	}
	if got := c.waitComplete(t); got != "false" {
		t.Fatalf("expected cancelled run to complete false, got %q", got)
	}
	if r.Active("s1") {
		t.Fatal("cancelled run still tracked")
	}
}

func TestRunner_CancelUnknownSession(t *testing.T) {
	b := bus.NewMemoryBus()
	r, err := New(Config{Binary: "true", Bus: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.CancelRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error cancelling unknown session")
	}
}

func TestRunner_StatsSampling(t *testing.T) {
	script := writeScript(t, `sleep 1`)
	b := bus.NewMemoryBus()
	c := newCollector(t, b, bus.ChannelComplete)

	var mu sync.Mutex
	samples := 0
	obs := session.ObserverFunc(func(kind string, _ interface{}) {
		if kind == session.EventProcessStats {
			mu.Lock()
			samples++
			mu.Unlock()
		}
	})
	r, err := New(Config{Binary: script, Bus: b, Observer: obs, StatsInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.StartRun(context.Background(), t.TempDir(), "hello", ""); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	c.waitComplete(t)

	mu.Lock()
	defer mu.Unlock()
	if samples == 0 {
		t.Fatal("expected at least one process stats sample")
	}
}
