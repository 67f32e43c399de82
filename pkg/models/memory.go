package models

import "time"

// MemoryType classifies a long-term MemoryEntry.
type MemoryType string

const (
	MemoryTypeFact              MemoryType = "fact"
	MemoryTypeBelief            MemoryType = "belief"
	MemoryTypeEvent             MemoryType = "event"
	MemoryTypeExecutionPattern  MemoryType = "execution_pattern"
	MemoryTypeSolution          MemoryType = "solution"
	MemoryTypeSummary           MemoryType = "summary"
)

// MemoryEntry is a long-term fact or belief captured by the memory system.
type MemoryEntry struct {
	ID             string         `json:"id"`
	Content        string         `json:"content"`
	Type           MemoryType     `json:"type"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
	AccessCount    int            `json:"accessCount"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Embedding      []float32      `json:"embedding,omitempty"`
}

// ScoredMemory pairs a MemoryEntry with the fused retrieval score that
// produced it, for a single recall() call.
type ScoredMemory struct {
	Entry *MemoryEntry
	Score float64
}
