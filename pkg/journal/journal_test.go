package journal

import (
	"context"
	"path/filepath"
	"testing"
)

type recordingDeleter struct {
	calls []Entry
	failType string
}

func (d *recordingDeleter) Delete(ctx context.Context, entryType, id string) error {
	d.calls = append(d.calls, Entry{Type: entryType, ID: id})
	if entryType == d.failType {
		return errBoom
	}
	return nil
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}

func TestJournalRecordAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, e := range []Entry{{"server", "A"}, {"port", "P1"}, {"port", "P2"}, {"network", "N"}} {
		if err := j.Record(e.Type, e.ID); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	j.Close()

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
}

func TestCleanupReplaysInLIFOOrderAndContinuesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, _ := Open(path)
	for _, e := range []Entry{{"server", "A"}, {"port", "P1"}, {"port", "P2"}, {"network", "N"}} {
		j.Record(e.Type, e.ID)
	}
	j.Close()

	d := &recordingDeleter{failType: "port"}
	if err := Cleanup(context.Background(), path, d); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}

	want := []Entry{{"network", "N"}, {"port", "P2"}, {"port", "P1"}, {"server", "A"}}
	if len(d.calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(d.calls), len(want))
	}
	for i := range want {
		if d.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, d.calls[i], want[i])
		}
	}
}
