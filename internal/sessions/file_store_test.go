package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return fs
}

func TestFileStoreGetOrCreatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := BuildKey("agent1", "telegram", "42")

	fs1, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs1.GetOrCreate(ctx, key, "agent1", "telegram", "42"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	fs2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	s, err := fs2.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if s.Key != key {
		t.Fatalf("unexpected key %q", s.Key)
	}
}

func TestFileStoreAppendMessagePersistsTranscript(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := BuildKey("agent1", "", "")

	fs1, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs1.GetOrCreate(ctx, key, "agent1", "", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := fs1.AppendMessage(ctx, key, models.Message{Role: models.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := fs1.AppendMessage(ctx, key, models.Message{Role: models.RoleAssistant, Content: "hi there"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	fs2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	history, err := fs2.GetHistory(ctx, key, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after reopen, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi there" {
		t.Fatalf("unexpected transcript order: %+v", history)
	}
}

func TestFileStoreDeleteArchivesTranscript(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()
	key := BuildKey("agent1", "", "")

	if _, err := fs.GetOrCreate(ctx, key, "agent1", "", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := fs.AppendMessage(ctx, key, models.Message{Content: "x"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Get(ctx, key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(fs.transcriptPath(key)); !os.IsNotExist(err) {
		t.Fatalf("expected live transcript to be moved away, stat err = %v", err)
	}
	archived, err := filepath.Glob(filepath.Join(fs.transcriptDir, "archive", "*.jsonl"))
	if err != nil {
		t.Fatalf("glob archive: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived transcript, got %d", len(archived))
	}
}

func TestFileStoreListFiltersByAgentAndChannel(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	if _, err := fs.GetOrCreate(ctx, BuildKey("a1", "telegram", "1"), "a1", "telegram", "1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := fs.GetOrCreate(ctx, BuildKey("a1", "discord", "2"), "a1", "discord", "2"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := fs.GetOrCreate(ctx, BuildKey("a2", "telegram", "3"), "a2", "telegram", "3"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	out, err := fs.List(ctx, "a1", ListOptions{Channel: "telegram"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 session, got %d", len(out))
	}
}
