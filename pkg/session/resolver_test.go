package session

import (
	"testing"

	"github.com/agentdeck/agentdeck/pkg/stream"
)

func initMessage(id string) stream.Message {
	return stream.Message{Type: stream.TypeSystem, Subtype: stream.SubtypeInit, SessionID: id}
}

func TestResolver_ConfirmsFromInit(t *testing.T) {
	r := NewResolver("", nil)
	if _, confirmed := r.ID(); confirmed {
		t.Fatal("fresh resolver must start unconfirmed")
	}

	// Non-init messages carrying an id do not confirm.
	id, now := r.Observe(stream.Message{Type: stream.TypeAssistant, SessionID: "s1"})
	if now || id != "" {
		t.Fatalf("assistant message confirmed id %q", id)
	}

	id, now = r.Observe(initMessage("s1"))
	if !now || id != "s1" {
		t.Fatalf("expected confirmation s1, got %q/%v", id, now)
	}

	// Confirmation happens exactly once.
	if _, again := r.Observe(initMessage("s1")); again {
		t.Fatal("second init must not re-confirm")
	}
}

func TestResolver_ExplicitIDAuthoritative(t *testing.T) {
	r := NewResolver("explicit", nil)
	id, confirmed := r.ID()
	if !confirmed || id != "explicit" {
		t.Fatalf("explicit id not authoritative: %q/%v", id, confirmed)
	}
	if id, now := r.Observe(initMessage("other")); now || id != "explicit" {
		t.Fatalf("init overrode explicit id: %q", id)
	}
}

func TestResolver_ConflictIsAnomalyNotRebind(t *testing.T) {
	obs := newCountingObserver()
	r := NewResolver("", obs)
	r.Observe(initMessage("s1"))

	id, now := r.Observe(stream.Message{Type: stream.TypeAssistant, SessionID: "s2"})
	if now || id != "s1" {
		t.Fatalf("conflicting id rebound session: %q", id)
	}
	if obs.count(EventProtocolAnomaly) != 1 {
		t.Fatalf("expected 1 anomaly event, got %d", obs.count(EventProtocolAnomaly))
	}

	// Matching ids are not anomalies.
	r.Observe(stream.Message{Type: stream.TypeUser, SessionID: "s1"})
	if obs.count(EventProtocolAnomaly) != 1 {
		t.Fatal("matching id reported as anomaly")
	}
}
