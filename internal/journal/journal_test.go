package journal_test

import (
	"testing"

	"github.com/nugget/message-agent-host/internal/journal"
)

func TestRecordAndQuery(t *testing.T) {
	j := journal.New(t.TempDir(), true, nil)

	j.Record("web", "c1", "t1", journal.EventPipelineStarted, nil)
	j.Record("web", "c1", "t1", journal.EventTaskCompleted, map[string]any{"ok": true})

	entries, err := j.Query("web", "c1", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	// newest first
	if entries[0].Event != journal.EventTaskCompleted {
		t.Fatalf("entries[0].Event = %q, want %q", entries[0].Event, journal.EventTaskCompleted)
	}
	if entries[1].Event != journal.EventPipelineStarted {
		t.Fatalf("entries[1].Event = %q, want %q", entries[1].Event, journal.EventPipelineStarted)
	}
}

func TestRecordDisabledIsNoop(t *testing.T) {
	j := journal.New(t.TempDir(), false, nil)
	j.Record("web", "c1", "t1", journal.EventPipelineStarted, nil)

	entries, err := j.Query("web", "c1", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("len = %d, want 0 for disabled journal", len(entries))
	}
}

func TestRecordNilReceiverIsSafe(t *testing.T) {
	var j *journal.Journal
	j.Record("web", "c1", "t1", journal.EventPipelineStarted, nil)
}
