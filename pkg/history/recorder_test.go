package history

import (
	"context"
	"testing"

	"github.com/agentdeck/agentdeck/pkg/session"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

func TestRecorder_BuffersUntilConfirmed(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	r := NewRecorder(store, "")
	r.OnEvent(session.EventMessageAppended, stream.NewUserMessage("first"))
	r.OnEvent(session.EventMessageAppended, stream.Message{
		Type: stream.TypeSystem, Subtype: stream.SubtypeInit, SessionID: "s1",
	})

	// Nothing persisted yet.
	if got, _ := store.LoadHistory(context.Background(), "s1"); len(got) != 0 {
		t.Fatalf("messages persisted before confirmation: %v", got)
	}

	r.OnEvent(session.EventSessionConfirmed, "s1")
	r.OnEvent(session.EventMessageAppended, stream.Message{
		Type: stream.TypeResult, Subtype: stream.SubtypeSuccess, SessionID: "s1", Result: "ok",
	})

	got, err := store.LoadHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected buffered + live messages, got %d", len(got))
	}
	if got[0].Text() != "first" {
		t.Fatalf("buffered order lost: %+v", got[0])
	}
}

func TestRecorder_KnownSessionWritesThrough(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	r := NewRecorder(store, "s9")
	r.OnEvent(session.EventMessageAppended, stream.NewUserMessage("direct"))
	// Unrelated events are ignored.
	r.OnEvent(session.EventStateChanged, "running")

	got, err := store.LoadHistory(context.Background(), "s9")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 persisted message, got %v, %v", got, err)
	}
}
