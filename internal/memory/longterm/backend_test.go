package longterm

import (
	"context"
	"testing"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Path: ":memory:", Dimension: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func entry(id, content string, vec []float32) *models.MemoryEntry {
	return &models.MemoryEntry{
		ID:             id,
		Content:        content,
		Type:           models.MemoryTypeFact,
		Confidence:     0.8,
		CreatedAt:      time.Now().UTC(),
		LastAccessedAt: time.Now().UTC(),
		Embedding:      vec,
	}
}

func TestIndexAndCount(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("1", "the sky is blue", []float32{1, 0, 0, 0}),
		entry("2", "grass is green", []float32{0, 1, 0, 0}),
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	n, err := b.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("close", "near match", []float32{1, 0, 0, 0}),
		entry("far", "unrelated", []float32{0, 0, 0, 1}),
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	entries, scores, err := b.VectorSearch(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 results, got %d", len(entries))
	}
	if entries[0].ID != "close" {
		t.Fatalf("expected closest entry first, got %s", entries[0].ID)
	}
	if scores[0] <= scores[1] {
		t.Fatalf("expected descending scores, got %v", scores)
	}
}

func TestKeywordSearchFindsTermOverlap(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("1", "the user prefers dark mode in the editor", nil),
		entry("2", "the weather today is sunny", nil),
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	entries, _, err := b.KeywordSearch(ctx, "dark mode editor", 5)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "1" {
		t.Fatalf("expected entry 1 to match, got %+v", entries)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{entry("1", "to be removed", nil)}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := b.Delete(ctx, []string{"1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := b.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestTouchAccessUpdatesStats(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	e := entry("1", "accessed memory", nil)
	e.LastAccessedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := b.Index(ctx, []*models.MemoryEntry{e}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	now := time.Now().UTC()
	if err := b.TouchAccess(ctx, []string{"1"}, now); err != nil {
		t.Fatalf("TouchAccess: %v", err)
	}

	all, _, err := b.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(all))
	}
	if all[0].AccessCount != 1 {
		t.Fatalf("AccessCount = %d, want 1", all[0].AccessCount)
	}
	if all[0].LastAccessedAt.Before(now.Add(-time.Second)) {
		t.Fatalf("LastAccessedAt not updated: %v", all[0].LastAccessedAt)
	}
}
