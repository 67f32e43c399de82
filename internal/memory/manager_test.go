package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/DrayChou/personal-ai-assistant/internal/config"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Config:  config.DefaultConfig().Memory,
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCaptureAndKeywordOnlyRecall(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.Capture(ctx, "the user's favorite color is teal", "fact", []string{"preference"}, nil); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := m.Capture(ctx, "it rained heavily in Seattle", "event", nil, nil); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	result, err := m.Recall(ctx, "favorite color", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if !strings.Contains(result, "teal") {
		t.Fatalf("expected recall to surface the color fact, got %q", result)
	}
}

func TestRecallWithNoMatchesReturnsEmptyString(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.Capture(ctx, "unrelated memory content", "event", nil, nil); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	result, err := m.Recall(ctx, "completely different topic xyz", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if result != "" {
		t.Fatalf("expected empty recall, got %q", result)
	}
}

func TestConsolidateAppliesForgettingRule(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.Capture(ctx, "low confidence throwaway note", "event", nil, nil); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	entries, _, err := m.backend.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entries[0].Confidence = 0.1
	entries[0].AccessCount = 0
	if err := m.backend.Index(ctx, []*models.MemoryEntry{&entries[0]}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	if err := m.Consolidate(ctx); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	n, err := m.backend.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected forgetting rule to remove the low-confidence entry, got %d remaining", n)
	}
}
