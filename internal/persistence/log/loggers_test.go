package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"kittyledger.dev/internal/protocol"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "cycles")
	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "cycles")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}
	if filepath.Base(files[0]) != "cycles-2024-05-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}

	var seen []int
	for _, p := range files {
		if err := ReadLines(p, func(line []byte) error {
			var v map[string]int
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			seen = append(seen, v["n"])
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}
	if len(seen) != 4 || seen[0] != 0 || seen[3] != 3 {
		t.Fatalf("lines=%v", seen)
	}
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "notifications")
		w.now = func() time.Time { return clock }
		if err := w.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = w.Close()
	}
	files, _ := ListFiles(dir, "notifications")
	if len(files) != 1 {
		t.Fatalf("files=%v want 1", files)
	}
	n := 0
	if err := ReadLines(files[0], func([]byte) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("lines=%d want 2", n)
	}
}

func TestCycleLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewCycleLogger(dir)
	entry := protocol.CycleLogEntry{
		Cycle:    4,
		Seed:     "00",
		Commands: []protocol.Command{{ID: "c1", Type: protocol.TypeMint, Caller: "alice"}},
		Results:  []protocol.Result{{ID: "c1", OK: true}},
		Digest:   "d",
	}
	if err := l.WriteCycle(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = l.Close()

	files, err := ListFiles(filepath.Join(dir, "cycles"), "cycles")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got protocol.CycleLogEntry
	_ = ReadLines(files[0], func(line []byte) error { return json.Unmarshal(line, &got) })
	if got.Cycle != 4 || len(got.Commands) != 1 || got.Commands[0].Caller != "alice" || got.Digest != "d" {
		t.Fatalf("entry=%+v", got)
	}
}
