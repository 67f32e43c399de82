// Package longterm implements Tier 1 of the memory system: a local
// embedded database combining a key-value table over MemoryEntry fields
// with a brute-force cosine-similarity vector scan, plus BM25-style
// keyword search over content and tags.
package longterm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Backend is the sqlite-backed long-term memory store. Writes are
// serialized through mu per spec.md §5's "single mutex around the db
// handle" shared-resource policy; modernc.org/sqlite is a pure-Go
// single-process driver and does not itself arbitrate concurrent writers.
type Backend struct {
	mu        sync.Mutex
	db        *sql.DB
	dimension int
}

// Config configures the long-term backend.
type Config struct {
	Path      string // ":memory:" or a file path
	Dimension int
}

// New opens (creating if needed) the sqlite-backed long-term store.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("longterm: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // pure-Go single-writer file, avoid driver-level contention

	b := &Backend{db: db, dimension: cfg.Dimension}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at DATETIME NOT NULL,
			last_accessed_at DATETIME NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			metadata TEXT,
			embedding BLOB
		)
	`)
	if err != nil {
		return fmt.Errorf("longterm: create table: %w", err)
	}
	if _, err := b.db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type)`); err != nil {
		return fmt.Errorf("longterm: create index: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Index upserts entries, storing each entry's own Embedding (already
// computed by the caller; nil stores no vector).
func (b *Backend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("longterm: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO memories
			(id, content, type, confidence, created_at, last_accessed_at, access_count, tags, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("longterm: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		if e.LastAccessedAt.IsZero() {
			e.LastAccessedAt = e.CreatedAt
		}
		tagsJSON, _ := json.Marshal(e.Tags)
		metaJSON, _ := json.Marshal(e.Metadata)
		embeddingBlob, err := encodeVector(e.Embedding)
		if err != nil {
			return fmt.Errorf("longterm: encode embedding for %s: %w", e.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, e.ID, e.Content, string(e.Type), e.Confidence,
			e.CreatedAt, e.LastAccessedAt, e.AccessCount, string(tagsJSON), string(metaJSON), embeddingBlob); err != nil {
			return fmt.Errorf("longterm: insert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes entries by ID.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM memories WHERE id IN (%s)", strings.Join(placeholders, ","))
	_, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("longterm: delete: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("longterm: count: %w", err)
	}
	return n, nil
}

// Compact runs SQLite's VACUUM to reclaim space after deletes.
func (b *Backend) Compact(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("longterm: compact: %w", err)
	}
	return nil
}

// candidateRow is every column needed for both vector and keyword
// scoring, loaded once per Search call.
type candidateRow struct {
	entry     models.MemoryEntry
	embedding []float32
}

func (b *Backend) loadAll(ctx context.Context) ([]candidateRow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, content, type, confidence, created_at, last_accessed_at, access_count, tags, metadata, embedding
		FROM memories
	`)
	if err != nil {
		return nil, fmt.Errorf("longterm: query: %w", err)
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var (
			c          candidateRow
			typ        string
			tagsJSON   string
			metaJSON   string
			embedBlob  []byte
		)
		if err := rows.Scan(&c.entry.ID, &c.entry.Content, &typ, &c.entry.Confidence,
			&c.entry.CreatedAt, &c.entry.LastAccessedAt, &c.entry.AccessCount, &tagsJSON, &metaJSON, &embedBlob); err != nil {
			return nil, fmt.Errorf("longterm: scan row: %w", err)
		}
		c.entry.Type = models.MemoryType(typ)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &c.entry.Tags)
		}
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &c.entry.Metadata)
		}
		vec, err := decodeVector(embedBlob)
		if err != nil {
			return nil, fmt.Errorf("longterm: decode embedding for %s: %w", c.entry.ID, err)
		}
		c.embedding = vec
		out = append(out, c)
	}
	return out, rows.Err()
}

// VectorSearch returns the topK candidates by cosine similarity to
// queryEmbedding, alongside their raw similarity scores.
func (b *Backend) VectorSearch(ctx context.Context, queryEmbedding []float32, topK int) ([]models.MemoryEntry, []float64, error) {
	rows, err := b.loadAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	type scored struct {
		entry models.MemoryEntry
		score float64
	}
	scoredRows := make([]scored, 0, len(rows))
	for _, r := range rows {
		scoredRows = append(scoredRows, scored{entry: r.entry, score: cosineSimilarity(queryEmbedding, r.embedding)})
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if topK > 0 && len(scoredRows) > topK {
		scoredRows = scoredRows[:topK]
	}

	entries := make([]models.MemoryEntry, len(scoredRows))
	scores := make([]float64, len(scoredRows))
	for i, s := range scoredRows {
		entries[i] = s.entry
		scores[i] = s.score
	}
	return entries, scores, nil
}

// KeywordSearch performs exact + BM25-style scoring over content and
// tags, returning the topK candidates and their normalized rank scores
// in [0, 1].
func (b *Backend) KeywordSearch(ctx context.Context, query string, topK int) ([]models.MemoryEntry, []float64, error) {
	rows, err := b.loadAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil, nil
	}

	docs := make([][]string, len(rows))
	for i, r := range rows {
		docs[i] = tokenize(r.entry.Content + " " + strings.Join(r.entry.Tags, " "))
	}

	bm25Scores := bm25(terms, docs)

	type scored struct {
		entry models.MemoryEntry
		score float64
	}
	scoredRows := make([]scored, 0, len(rows))
	maxScore := 0.0
	for i, r := range rows {
		if bm25Scores[i] > maxScore {
			maxScore = bm25Scores[i]
		}
		scoredRows = append(scoredRows, scored{entry: r.entry, score: bm25Scores[i]})
	}
	// Filter out zero-score (no term overlap) and normalize to [0,1].
	filtered := scoredRows[:0]
	for _, s := range scoredRows {
		if s.score <= 0 {
			continue
		}
		if maxScore > 0 {
			s.score /= maxScore
		}
		filtered = append(filtered, s)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].score > filtered[j].score })
	if topK > 0 && len(filtered) > topK {
		filtered = filtered[:topK]
	}

	entries := make([]models.MemoryEntry, len(filtered))
	scores := make([]float64, len(filtered))
	for i, s := range filtered {
		entries[i] = s.entry
		scores[i] = s.score
	}
	return entries, scores, nil
}

// TouchAccess bumps accessCount and lastAccessedAt for the given IDs,
// implementing the RIF model's access-statistics update step.
func (b *Backend) TouchAccess(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	stmt, err := b.db.PrepareContext(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("longterm: prepare touch: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id); err != nil {
			return fmt.Errorf("longterm: touch %s: %w", id, err)
		}
	}
	return nil
}

// All returns every stored entry, for consolidation's clustering pass.
func (b *Backend) All(ctx context.Context) ([]models.MemoryEntry, [][]float32, error) {
	rows, err := b.loadAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]models.MemoryEntry, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
		vectors[i] = r.embedding
	}
	return entries, vectors, nil
}

func cosineSimilarity(a, b []float32) float64 {
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

func encodeVector(v []float32) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(blob, &v); err != nil {
		return nil, err
	}
	return v, nil
}
