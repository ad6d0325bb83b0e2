package session

import "testing"

func TestPromptQueue_FIFO(t *testing.T) {
	q := NewPromptQueue()
	a := q.Enqueue("one", "")
	b := q.Enqueue("two", "opus")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}

	first, ok := q.Dequeue()
	if !ok || first.Text != "one" {
		t.Fatalf("expected oldest first, got %+v", first)
	}
	second, ok := q.Dequeue()
	if !ok || second.Text != "two" || second.Model != "opus" {
		t.Fatalf("unexpected second item: %+v", second)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("dequeue from empty queue must report empty")
	}
}

func TestPromptQueue_Clear(t *testing.T) {
	q := NewPromptQueue()
	q.Enqueue("one", "")
	q.Enqueue("two", "")
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after clear, got %d", q.Len())
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("cleared queue still yielded an item")
	}
}
