// Package memory implements the three-tier memory system: an
// in-process working-memory helper lives in internal/agent; this
// package owns Tier 1 (consolidated long-term entries, hybrid
// vector+keyword retrieval) and Tier 2 (the raw append-only event
// log), plus the file-only fallback engaged when the long-term backend
// misbehaves.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DrayChou/personal-ai-assistant/internal/config"
	"github.com/DrayChou/personal-ai-assistant/internal/llm"
	"github.com/DrayChou/personal-ai-assistant/internal/memory/embed"
	"github.com/DrayChou/personal-ai-assistant/internal/memory/fallback"
	"github.com/DrayChou/personal-ai-assistant/internal/memory/longterm"
	"github.com/DrayChou/personal-ai-assistant/internal/memory/rawlog"
	"github.com/DrayChou/personal-ai-assistant/internal/observability"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Summarizer is the narrow LLM contract consolidation needs: turn a
// cluster of related memory contents into one summary sentence. A nil
// Summarizer disables consolidation's summarization step; clusters are
// still decayed and forgotten, just not merged into a summary entry.
type Summarizer interface {
	Summarize(ctx context.Context, contents []string) (string, error)
}

// llmSummarizer adapts an llm.Adapter into a Summarizer.
type llmSummarizer struct {
	adapter llm.Adapter
}

func (s llmSummarizer) Summarize(ctx context.Context, contents []string) (string, error) {
	prompt := "Summarize the following related memories into one concise sentence that preserves the facts:\n- " + strings.Join(contents, "\n- ")
	completion, err := s.adapter.Generate(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}}, nil, llm.ToolChoiceNone)
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

// NewLLMSummarizer wraps adapter as a Summarizer for consolidation.
func NewLLMSummarizer(adapter llm.Adapter) Summarizer {
	return llmSummarizer{adapter: adapter}
}

// Manager coordinates the long-term backend, its file-only fallback,
// the raw event log, and embedding, behind a single recall/capture
// surface. It satisfies internal/agent.MemoryRecaller.
type Manager struct {
	mu       sync.RWMutex
	cfg      config.MemoryConfig
	embedder embed.Embedder
	backend  *longterm.Backend
	fallback *fallback.Store
	rawlog   *rawlog.Log
	summary  Summarizer
	logger   *slog.Logger
	metrics  *observability.Metrics

	usingFallback bool
}

// Options bundles Manager's constructor dependencies.
type Options struct {
	Config   config.MemoryConfig
	DataDir  string
	Embedder embed.Embedder // may be nil: disables vector search, keyword-only
	Summary  Summarizer     // may be nil: disables consolidation's merge step
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewManager wires up the long-term backend (sqlite file under
// DataDir), the fallback store, and the raw event log.
func NewManager(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewTestMetrics()
	}

	dbPath := filepath.Join(opts.DataDir, "memories", "long_term.db")
	backendStore, err := longterm.New(longterm.Config{Path: dbPath, Dimension: opts.Config.Dimension})
	if err != nil {
		return nil, fmt.Errorf("memory: init long-term backend: %w", err)
	}

	fallbackStore, err := fallback.New(filepath.Join(opts.DataDir, "memories", "fallback"))
	if err != nil {
		return nil, fmt.Errorf("memory: init fallback store: %w", err)
	}

	rawLog, err := rawlog.Open(filepath.Join(opts.DataDir, "memories", "raw.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("memory: init raw log: %w", err)
	}

	return &Manager{
		cfg:      opts.Config,
		embedder: opts.Embedder,
		backend:  backendStore,
		fallback: fallbackStore,
		rawlog:   rawLog,
		summary:  opts.Summary,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Close releases the backend's database handle.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// Capture persists content as a new long-term memory entry, appending
// it to the raw log first so the long-term index can always be rebuilt
// even if the primary write below fails.
func (m *Manager) Capture(ctx context.Context, content string, memType string, tags []string, metadata map[string]any) error {
	if memType == "" {
		memType = string(models.MemoryTypeEvent)
	}
	id := uuid.NewString()
	now := time.Now().UTC()

	var vector []float32
	if m.embedder != nil {
		v, err := m.embedder.Embed(ctx, content)
		if err != nil {
			m.logger.Warn("memory: embed failed, capturing without a vector", "error", err)
		} else {
			vector = v
		}
	}

	event := rawlog.Event{ID: id, Content: content, Type: memType, Tags: tags, Metadata: metadata, Embedding: vector, CreatedAt: now}
	if err := m.rawlog.Append(ctx, event); err != nil {
		return fmt.Errorf("memory: append raw event: %w", err)
	}

	entry := event.ToMemoryEntry()
	entry.Confidence = 0.8

	if err := m.indexWithFallback(ctx, entry); err != nil {
		return fmt.Errorf("memory: index entry: %w", err)
	}
	return nil
}

// indexWithFallback writes entry to the primary backend, falling back
// to the file-only store on failure. If the manager is already in
// fallback mode, it retries the primary once per call before giving up
// on it again, so a transient outage self-heals without an explicit
// restart.
func (m *Manager) indexWithFallback(ctx context.Context, entry *models.MemoryEntry) error {
	m.mu.RLock()
	wasFallback := m.usingFallback
	m.mu.RUnlock()

	if !wasFallback {
		if err := m.backend.Index(ctx, []*models.MemoryEntry{entry}); err == nil {
			return nil
		} else {
			m.logger.Error("memory: primary backend index failed, engaging fallback", "error", err)
			m.setFallback(true)
		}
	} else {
		if err := m.backend.Index(ctx, []*models.MemoryEntry{entry}); err == nil {
			m.setFallback(false)
			return nil
		}
	}

	return m.fallback.Index(ctx, []*models.MemoryEntry{entry})
}

func (m *Manager) setFallback(v bool) {
	m.mu.Lock()
	changed := m.usingFallback != v
	m.usingFallback = v
	m.mu.Unlock()
	if changed && v {
		m.metrics.MemoryFallbackEngaged.Inc()
	}
}

// Recall fuses vector similarity, keyword rank, and RIF into a single
// score per candidate entry and returns the topK entries rendered as a
// plain-text block suitable for inclusion in an LLM prompt. Returns ""
// with a nil error when nothing matches, rather than forcing callers to
// special-case an empty result.
func (m *Manager) Recall(ctx context.Context, query string, topK int) (string, error) {
	if topK <= 0 {
		topK = 5
	}

	m.mu.RLock()
	inFallback := m.usingFallback
	m.mu.RUnlock()

	if inFallback {
		entries, err := m.fallback.KeywordSearch(ctx, query, topK)
		if err != nil {
			return "", fmt.Errorf("memory: fallback recall: %w", err)
		}
		return renderEntries(entries), nil
	}

	entries, err := m.recallFromPrimary(ctx, query, topK)
	if err != nil {
		m.logger.Error("memory: primary recall failed, engaging fallback", "error", err)
		m.setFallback(true)
		fallbackEntries, ferr := m.fallback.KeywordSearch(ctx, query, topK)
		if ferr != nil {
			return "", fmt.Errorf("memory: fallback recall: %w", ferr)
		}
		return renderEntries(fallbackEntries), nil
	}
	return renderEntries(entries), nil
}

func (m *Manager) recallFromPrimary(ctx context.Context, query string, topK int) ([]models.MemoryEntry, error) {
	var queryVector []float32
	if m.embedder != nil {
		v, err := m.embedder.Embed(ctx, query)
		if err != nil {
			m.logger.Warn("memory: embed query failed, falling back to keyword-only scoring", "error", err)
		} else {
			queryVector = v
		}
	}

	candidateScores := make(map[string]float64)
	candidates := make(map[string]models.MemoryEntry)

	// Over-fetch a wider candidate pool from each modality so fusion has
	// something to rank beyond whichever search ran last.
	poolSize := topK * 4
	if poolSize < 20 {
		poolSize = 20
	}

	if len(queryVector) > 0 {
		vecEntries, vecScores, err := m.backend.VectorSearch(ctx, queryVector, poolSize)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for i, e := range vecEntries {
			candidates[e.ID] = e
			candidateScores[e.ID] += m.cfg.FusionWeights.Vector * vecScores[i]
		}
	}

	kwEntries, kwScores, err := m.backend.KeywordSearch(ctx, query, poolSize)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	for i, e := range kwEntries {
		candidates[e.ID] = e
		candidateScores[e.ID] += m.cfg.FusionWeights.Keyword * kwScores[i]
	}

	now := time.Now().UTC()
	for id, e := range candidates {
		candidateScores[id] += m.cfg.FusionWeights.RIF * rif(e, now, m.cfg.RIFWeights)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return candidateScores[ids[i]] > candidateScores[ids[j]] })
	if len(ids) > topK {
		ids = ids[:topK]
	}

	out := make([]models.MemoryEntry, len(ids))
	for i, id := range ids {
		out[i] = candidates[id]
	}

	if err := m.backend.TouchAccess(ctx, ids, now); err != nil {
		m.logger.Warn("memory: touch access stats failed", "error", err)
	}

	return out, nil
}

func renderEntries(entries []models.MemoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s\n", e.Type, e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
