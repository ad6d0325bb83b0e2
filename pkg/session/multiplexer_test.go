package session

import (
	"errors"
	"testing"

	"github.com/agentdeck/agentdeck/pkg/bus"
)

func TestMultiplexer_UpgradeHandoff(t *testing.T) {
	b := bus.NewMemoryBus()
	var outputs []string
	var completes []bool
	m := NewMultiplexer(b, ChannelHandlers{
		Output:   func(p []byte) { outputs = append(outputs, string(p)) },
		Complete: func(ok bool) { completes = append(completes, ok) },
	})

	if err := m.OpenGeneric(); err != nil {
		t.Fatalf("OpenGeneric failed: %v", err)
	}
	b.Publish(bus.ChannelOutput, []byte("g1"))

	if err := m.Upgrade("s1"); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if m.Scope() != "s1" {
		t.Fatalf("expected scope s1, got %q", m.Scope())
	}

	// Generic is released after the scoped set is live.
	b.Publish(bus.ChannelOutput, []byte("g2"))
	b.Publish(bus.Scoped(bus.ChannelOutput, "s1"), []byte("s1-a"))
	b.Publish(bus.Scoped(bus.ChannelComplete, "s1"), []byte("true"))

	if len(outputs) != 2 || outputs[0] != "g1" || outputs[1] != "s1-a" {
		t.Fatalf("unexpected outputs: %v", outputs)
	}
	if len(completes) != 1 || !completes[0] {
		t.Fatalf("unexpected completes: %v", completes)
	}

	m.Close()
	b.Publish(bus.Scoped(bus.ChannelOutput, "s1"), []byte("after-close"))
	if len(outputs) != 2 {
		t.Fatalf("delivery after Close: %v", outputs)
	}
}

func TestMultiplexer_UpgradeIdempotent(t *testing.T) {
	b := bus.NewMemoryBus()
	var outputs []string
	m := NewMultiplexer(b, ChannelHandlers{
		Output: func(p []byte) { outputs = append(outputs, string(p)) },
	})
	if err := m.OpenGeneric(); err != nil {
		t.Fatalf("OpenGeneric failed: %v", err)
	}
	if err := m.Upgrade("s1"); err != nil {
		t.Fatalf("first Upgrade failed: %v", err)
	}
	if err := m.Upgrade("s1"); err != nil {
		t.Fatalf("duplicate Upgrade must be a no-op: %v", err)
	}

	b.Publish(bus.Scoped(bus.ChannelOutput, "s1"), []byte("once"))
	if len(outputs) != 1 {
		t.Fatalf("duplicate upgrade doubled delivery: %v", outputs)
	}
	if b.SubscriberCount(bus.Scoped(bus.ChannelOutput, "s1")) != 1 {
		t.Fatal("duplicate upgrade left extra subscriptions")
	}
}

func TestMultiplexer_CompletePayloadDecoding(t *testing.T) {
	b := bus.NewMemoryBus()
	var completes []bool
	m := NewMultiplexer(b, ChannelHandlers{
		Complete: func(ok bool) { completes = append(completes, ok) },
	})
	if err := m.OpenGeneric(); err != nil {
		t.Fatalf("OpenGeneric failed: %v", err)
	}
	defer m.Close()

	b.Publish(bus.ChannelComplete, []byte("true"))
	b.Publish(bus.ChannelComplete, []byte(" true\n"))
	b.Publish(bus.ChannelComplete, []byte("false"))
	b.Publish(bus.ChannelComplete, []byte("garbage"))

	want := []bool{true, true, false, false}
	if len(completes) != len(want) {
		t.Fatalf("expected %d completes, got %v", len(want), completes)
	}
	for i := range want {
		if completes[i] != want[i] {
			t.Fatalf("complete %d: want %v, got %v", i, want[i], completes[i])
		}
	}
}

// failingBus rejects subscriptions for one channel name.
type failingBus struct {
	bus.Bus
	failChannel string
}

func (f *failingBus) Subscribe(channel string, h bus.Handler) (bus.Subscription, error) {
	if channel == f.failChannel {
		return nil, errors.New("subscribe refused")
	}
	return f.Bus.Subscribe(channel, h)
}

func TestMultiplexer_SubscriptionFailureSurfaced(t *testing.T) {
	inner := bus.NewMemoryBus()
	b := &failingBus{Bus: inner, failChannel: bus.Scoped(bus.ChannelError, "s1")}
	m := NewMultiplexer(b, ChannelHandlers{})

	if err := m.OpenGeneric(); err != nil {
		t.Fatalf("OpenGeneric failed: %v", err)
	}
	if err := m.Upgrade("s1"); err == nil {
		t.Fatal("expected Upgrade to surface the subscription failure")
	}
	// The partial scoped set is rolled back.
	if inner.SubscriberCount(bus.Scoped(bus.ChannelOutput, "s1")) != 0 {
		t.Fatal("failed upgrade leaked scoped subscriptions")
	}
}
