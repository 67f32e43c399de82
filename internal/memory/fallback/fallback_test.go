package fallback

import (
	"context"
	"testing"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func TestIndexAndKeywordSearch(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	err = s.Index(ctx, []*models.MemoryEntry{
		{ID: "1", Content: "the user likes dark mode", Type: models.MemoryTypeFact},
		{ID: "2", Content: "it is raining today", Type: models.MemoryTypeEvent},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := s.KeywordSearch(ctx, "dark mode", 5)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("expected entry 1, got %+v", results)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Index(ctx, []*models.MemoryEntry{{ID: "1", Content: "gone soon"}}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := s.Delete(ctx, []string{"1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Delete(context.Background(), []string{"does-not-exist"}); err != nil {
		t.Fatalf("Delete of missing id should be a no-op, got %v", err)
	}
}
