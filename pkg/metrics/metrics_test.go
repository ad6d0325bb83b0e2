package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/pkg/session"
)

func TestSink_RecordsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink, err := NewSink(path)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	sink.OnEvent(session.EventRunStarted, map[string]string{"session": "s1"})
	sink.OnEvent(session.EventRunCompleted, "s1")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink file: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("corrupt record: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Kind != session.EventRunStarted || !records[0].Timestamp.Equal(fixed) {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Kind != session.EventRunCompleted || records[1].Payload != "s1" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}
