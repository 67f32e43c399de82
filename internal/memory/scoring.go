package memory

import (
	"math"
	"time"

	"github.com/DrayChou/personal-ai-assistant/internal/config"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// rif computes the Recency/Importance/Frequency component of an
// entry's retrieval score at the given instant.
//
//	recency    = exp(-hoursSinceLastAccess / 24h)
//	importance = confidence
//	frequency  = min(1, accessCount/10)
func rif(e models.MemoryEntry, now time.Time, w config.RIFWeightsConfig) float64 {
	hoursSince := now.Sub(e.LastAccessedAt).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	recency := math.Exp(-hoursSince / 24.0)
	importance := e.Confidence
	frequency := math.Min(1, float64(e.AccessCount)/10.0)
	return w.Recency*recency + w.Importance*importance + w.Frequency*frequency
}

// cosineSim computes cosine similarity between two equal-length vectors,
// used by consolidation's clustering pass.
func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
