package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

const (
	consolidationSimilarityThreshold = 0.85
	consolidationConfidenceDecay     = 0.7
	forgetConfidenceCeiling          = 0.3
	forgetAccessCountCeiling         = 2
)

// entriesExemptFromForgetting never get swept by the forgetting rule
// regardless of confidence or access count.
var entriesExemptFromForgetting = map[models.MemoryType]bool{
	models.MemoryTypeFact:     true,
	models.MemoryTypeSolution: true,
}

// Consolidate clusters near-duplicate long-term entries (cosine
// similarity above consolidationSimilarityThreshold, or sharing a tag),
// adds one summary entry for each cluster of two or more (when a
// Summarizer is configured and returns text), keeps the source entries
// with their confidence decayed, and applies the forgetting rule to
// entries that were underconfident and rarely accessed when the pass
// began.
//
// Consolidation stays within Tier 1: it never touches the raw event
// log, so a full rebuild from rawlog always recovers pre-consolidation
// state.
func (m *Manager) Consolidate(ctx context.Context) error {
	m.mu.RLock()
	inFallback := m.usingFallback
	m.mu.RUnlock()
	if inFallback {
		return fmt.Errorf("memory: consolidation requires the primary backend, which is currently unavailable")
	}

	entries, vectors, err := m.backend.All(ctx)
	if err != nil {
		return fmt.Errorf("memory: load entries for consolidation: %w", err)
	}

	clusters := clusterEntries(entries, vectors)

	var toIndex []*models.MemoryEntry
	var toDelete []string

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}

		contents := make([]string, len(cluster))
		tagSet := map[string]bool{}
		for i, idx := range cluster {
			contents[i] = entries[idx].Content
			for _, t := range entries[idx].Tags {
				tagSet[t] = true
			}
		}

		if m.summary != nil {
			summaryText, err := m.summary.Summarize(ctx, contents)
			if err != nil {
				m.logger.Warn("memory: consolidation summarize failed, decaying sources without merging", "error", err)
			} else if summaryText != "" {
				tags := make([]string, 0, len(tagSet)+1)
				tags = append(tags, "summary")
				for t := range tagSet {
					tags = append(tags, t)
				}
				toIndex = append(toIndex, &models.MemoryEntry{
					ID:             uuid.NewString(),
					Content:        summaryText,
					Type:           models.MemoryTypeSummary,
					Confidence:     0.9,
					CreatedAt:      time.Now().UTC(),
					LastAccessedAt: time.Now().UTC(),
					Tags:           tags,
				})
			}
		}

		for _, idx := range cluster {
			decayed := entries[idx]
			decayed.Confidence *= consolidationConfidenceDecay
			toIndex = append(toIndex, &decayed)
		}
	}

	allForForgetting := entries
	for _, e := range allForForgetting {
		if shouldForget(e) {
			toDelete = append(toDelete, e.ID)
		}
	}

	if len(toIndex) > 0 {
		if err := m.backend.Index(ctx, toIndex); err != nil {
			return fmt.Errorf("memory: persist consolidated entries: %w", err)
		}
	}
	if len(toDelete) > 0 {
		if err := m.backend.Delete(ctx, toDelete); err != nil {
			return fmt.Errorf("memory: forget entries: %w", err)
		}
	}
	return nil
}

func shouldForget(e models.MemoryEntry) bool {
	if entriesExemptFromForgetting[e.Type] {
		return false
	}
	return e.Confidence < forgetConfidenceCeiling && e.AccessCount < forgetAccessCountCeiling
}

// clusterEntries greedily groups entries whose embeddings are within
// consolidationSimilarityThreshold of a cluster's first member, or that
// share at least one tag with it. O(n^2) over the entry set, acceptable
// at the scale a personal assistant's memory store reaches.
func clusterEntries(entries []models.MemoryEntry, vectors [][]float32) [][]int {
	n := len(entries)
	assigned := make([]bool, n)
	var clusters [][]int

	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		cluster := []int{i}
		assigned[i] = true
		for j := i + 1; j < n; j++ {
			if assigned[j] {
				continue
			}
			if relatedEntries(entries[i], vectors[i], entries[j], vectors[j]) {
				cluster = append(cluster, j)
				assigned[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func relatedEntries(a models.MemoryEntry, aVec []float32, b models.MemoryEntry, bVec []float32) bool {
	if len(aVec) > 0 && len(bVec) > 0 && cosineSim(aVec, bVec) >= consolidationSimilarityThreshold {
		return true
	}
	for _, ta := range a.Tags {
		for _, tb := range b.Tags {
			if ta == tb {
				return true
			}
		}
	}
	return false
}
