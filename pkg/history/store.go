// Package history persists session transcripts as NDJSON files, one per
// session, and loads them back when a session is resumed.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

const transcriptExt = ".ndjson"

// Store is an append-only transcript store rooted at one directory.
type Store struct {
	dir string

	mu      sync.Mutex
	writers map[string]*transcriptWriter
}

// NewStore opens (creating if needed) a transcript store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("history store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{dir: dir, writers: map[string]*transcriptWriter{}}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+transcriptExt)
}

// Append writes one message to a session's transcript. Each line is
// flushed immediately so concurrent readers and watchers see it.
func (s *Store) Append(sessionID string, msg stream.Message) error {
	if sessionID == "" {
		return fmt.Errorf("append requires a session id")
	}
	if strings.ContainsAny(sessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[sessionID]
	if !ok {
		var err error
		w, err = newTranscriptWriter(s.path(sessionID))
		if err != nil {
			return err
		}
		s.writers[sessionID] = w
	}
	return w.write(msg)
}

// LoadHistory reads a session's transcript in recorded order. Malformed
// lines are logged and skipped; a missing transcript is an empty history.
func (s *Store) LoadHistory(_ context.Context, sessionID string) ([]stream.Message, error) {
	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []stream.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := stream.Parse(line)
		if err != nil {
			log.Warn("skipping corrupt transcript line", "session", sessionID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return out, nil
}

// Sessions lists the session ids with a stored transcript.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), transcriptExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), transcriptExt))
	}
	return out, nil
}

// Close flushes and closes all open transcript writers.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, w := range s.writers {
		if err := w.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.writers, id)
	}
	return firstErr
}

// transcriptWriter appends JSON lines to one transcript file.
type transcriptWriter struct {
	f   *os.File
	bw  *bufio.Writer
	enc *json.Encoder
}

func newTranscriptWriter(path string) (*transcriptWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	bw := bufio.NewWriter(f)
	return &transcriptWriter{f: f, bw: bw, enc: json.NewEncoder(bw)}, nil
}

func (w *transcriptWriter) write(msg stream.Message) error {
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode transcript line: %w", err)
	}
	return w.bw.Flush()
}

func (w *transcriptWriter) close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
