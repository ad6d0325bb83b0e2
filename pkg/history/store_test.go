package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/pkg/stream"
)

func TestStore_AppendAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	msgs := []stream.Message{
		stream.NewUserMessage("hello"),
		{Type: stream.TypeAssistant, SessionID: "s1", Message: &stream.Body{
			Content: []stream.ContentBlock{{Type: stream.BlockText, Text: "hi back"}},
		}},
		{Type: stream.TypeResult, Subtype: stream.SubtypeSuccess, SessionID: "s1", Result: "done"},
	}
	for _, m := range msgs {
		if err := store.Append("s1", m); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.LoadHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(got))
	}
	if got[0].Text() != "hello" || got[1].Text() != "hi back" || got[2].Text() != "done" {
		t.Fatalf("round trip lost content: %+v", got)
	}
	// Optimistic entries come back as confirmed history.
	if got[0].Local {
		t.Fatal("Local flag must not survive persistence")
	}
}

func TestStore_LoadSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	content := `{"type":"user","message":{"role":"user","content":"a"}}
not json at all
{"type":"result","subtype":"success","result":"b"}
`
	if err := os.WriteFile(filepath.Join(dir, "s1.ndjson"), []byte(content), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	got, err := store.LoadHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected corrupt line skipped, got %d messages", len(got))
	}
}

func TestStore_MissingTranscriptIsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	got, err := store.LoadHistory(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected empty history, got %v, %v", got, err)
	}
}

func TestStore_Sessions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()
	for _, id := range []string{"a", "b"} {
		if err := store.Append(id, stream.NewUserMessage("x")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	ids, err := store.Sessions()
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %v", ids)
	}
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Append("../evil", stream.NewUserMessage("x")); err == nil {
		t.Fatal("expected invalid session id rejected")
	}
}

func TestStore_Watch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := store.Append("s1", stream.NewUserMessage("x")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	select {
	case id := <-changes:
		if id != "s1" {
			t.Fatalf("expected change for s1, got %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}
