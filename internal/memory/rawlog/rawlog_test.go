package rawlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndReadAll(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "raw.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	events := []Event{
		{ID: "1", Content: "first", Type: "event", CreatedAt: time.Now().UTC()},
		{ID: "2", Content: "second", Type: "fact", CreatedAt: time.Now().UTC()},
	}
	for _, e := range events {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("events out of order: %+v", got)
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Append(context.Background(), Event{ID: "1", Content: "ok", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for corrupt append: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	f.Close()

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected malformed line to be skipped, got %d events", len(got))
	}
}
