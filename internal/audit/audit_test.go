package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppend_WritesNewlineDelimitedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := New(path, nil)

	l.Append(Record{Timestamp: time.Now(), UserID: 1, TabID: "t1", Command: "ls", Outcome: "ok"})
	l.Append(Record{Timestamp: time.Now(), UserID: 2, TabID: "t2", Command: "pwd", Outcome: "ok"})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var records []Record
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line %q: %v", scanner.Text(), err)
		}
		records = append(records, r)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].UserID != 1 || records[1].UserID != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestAppend_TruncatesLongCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := New(path, nil)

	long := make([]byte, maxCommandLen+50)
	for i := range long {
		long[i] = 'x'
	}
	l.Append(Record{UserID: 1, Command: string(long), Outcome: "ok"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var r Record
	if err := json.Unmarshal(data[:len(data)-1], &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.Command) != maxCommandLen {
		t.Fatalf("expected truncation to %d chars, got %d", maxCommandLen, len(r.Command))
	}
}

func TestAppend_RotatesOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := New(path, nil)
	l.maxSize = 10 // force rotation almost immediately

	l.Append(Record{UserID: 1, Command: "first", Outcome: "ok"})
	l.Append(Record{UserID: 2, Command: "second", Outcome: "ok"})

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file to exist: %v", err)
	}
}
