package history

import (
	"sync"

	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/session"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// Recorder mirrors a controller's log into the store. Messages that
// arrive before the session id is confirmed are buffered and flushed on
// confirmation.
type Recorder struct {
	store *Store

	mu        sync.Mutex
	sessionID string
	pending   []stream.Message
}

// NewRecorder creates a recorder; give it to the controller as an
// observer. sessionID may be empty for a fresh session.
func NewRecorder(store *Store, sessionID string) *Recorder {
	return &Recorder{store: store, sessionID: sessionID}
}

// OnEvent implements session.Observer.
func (r *Recorder) OnEvent(kind string, payload interface{}) {
	switch kind {
	case session.EventSessionConfirmed:
		id, ok := payload.(string)
		if !ok || id == "" {
			return
		}
		r.mu.Lock()
		r.sessionID = id
		pending := r.pending
		r.pending = nil
		r.mu.Unlock()
		for _, msg := range pending {
			r.persist(id, msg)
		}
	case session.EventMessageAppended:
		msg, ok := payload.(stream.Message)
		if !ok {
			return
		}
		r.mu.Lock()
		id := r.sessionID
		if id == "" {
			r.pending = append(r.pending, msg)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		r.persist(id, msg)
	}
}

func (r *Recorder) persist(sessionID string, msg stream.Message) {
	if err := r.store.Append(sessionID, msg); err != nil {
		log.Warn("transcript append failed", "session", sessionID, "error", err)
	}
}
