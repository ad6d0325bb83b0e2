package session

import (
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// Resolver determines the effective session id for a run. An explicit id
// (resuming a known session) is authoritative immediately; otherwise the id
// is confirmed from the first system/init message. Once confirmed the id is
// final: later messages claiming a different id are protocol anomalies,
// logged and ignored.
//
// Resolver is not safe for concurrent use; the controller serializes access.
type Resolver struct {
	id        string
	confirmed bool
	observer  Observer
}

// NewResolver creates a resolver. explicitID may be empty for a fresh
// session whose id the agent process will assign.
func NewResolver(explicitID string, obs Observer) *Resolver {
	if obs == nil {
		obs = NopObserver{}
	}
	r := &Resolver{observer: obs}
	if explicitID != "" {
		r.id = explicitID
		r.confirmed = true
	}
	return r
}

// ID returns the current session id and whether it has been confirmed.
func (r *Resolver) ID() (string, bool) {
	return r.id, r.confirmed
}

// Observe inspects one stream message. It returns the effective id and
// whether this message confirmed it (at most once per resolver).
func (r *Resolver) Observe(msg stream.Message) (string, bool) {
	if msg.SessionID == "" {
		return r.id, false
	}
	if !r.confirmed {
		if msg.Type == stream.TypeSystem && msg.Subtype == stream.SubtypeInit {
			r.id = msg.SessionID
			r.confirmed = true
			r.observer.OnEvent(EventSessionConfirmed, r.id)
			return r.id, true
		}
		return r.id, false
	}
	if msg.SessionID != r.id {
		log.Warn("ignoring conflicting session id",
			"confirmed", r.id,
			"claimed", msg.SessionID,
			"message_type", msg.Type)
		r.observer.OnEvent(EventProtocolAnomaly, map[string]string{
			"kind":      "session_id_conflict",
			"confirmed": r.id,
			"claimed":   msg.SessionID,
		})
	}
	return r.id, false
}
