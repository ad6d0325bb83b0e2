package session

import (
	"sync"

	"github.com/google/uuid"
)

// QueuedPrompt is a prompt submitted while a run was already in flight.
type QueuedPrompt struct {
	ID    string
	Text  string
	Model string
}

// PromptQueue is the FIFO buffer of prompts waiting for the current run to
// finish. Single consumer: only the controller dequeues.
type PromptQueue struct {
	mu    sync.Mutex
	items []QueuedPrompt
}

// NewPromptQueue creates an empty queue.
func NewPromptQueue() *PromptQueue {
	return &PromptQueue{}
}

// Enqueue appends a prompt and returns its queue entry.
func (q *PromptQueue) Enqueue(text, model string) QueuedPrompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := QueuedPrompt{ID: uuid.NewString(), Text: text, Model: model}
	q.items = append(q.items, item)
	return item
}

// Dequeue removes and returns the oldest prompt, if any.
func (q *PromptQueue) Dequeue() (QueuedPrompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedPrompt{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Clear drops all queued prompts.
func (q *PromptQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len returns the number of queued prompts.
func (q *PromptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
