// Package metrics records controller events as an NDJSON stream for
// offline inspection. It implements the controller's observer interface;
// the core stays free of reporting concerns.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/log"
)

// Record is one logged event.
type Record struct {
	Timestamp time.Time   `json:"ts"`
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Sink appends event records to a file.
type Sink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	now func() time.Time
}

// NewSink opens (creating if needed) an event sink at path.
func NewSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics sink: %w", err)
	}
	return &Sink{f: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// OnEvent implements session.Observer. Write failures are logged and
// otherwise ignored; metrics never interfere with a run.
func (s *Sink) OnEvent(kind string, payload interface{}) {
	rec := Record{Timestamp: s.now().UTC(), Kind: kind, Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		log.Warn("metrics write failed", "kind", kind, "error", err)
	}
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
