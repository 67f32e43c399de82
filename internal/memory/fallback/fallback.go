// Package fallback implements the file-only long-term memory backend
// used when the primary sqlite-backed store fails to open or fails an
// operation: one JSON file per entry, keyword-substring search instead
// of vector similarity, no consolidation support.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Store is a directory of one JSON file per MemoryEntry, keyed by ID.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// New opens (creating if needed) a fallback store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fallback: create dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// Index writes entries to disk, one file each.
func (s *Store) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("fallback: marshal %s: %w", e.ID, err)
		}
		tmp := s.path(e.ID) + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("fallback: write %s: %w", e.ID, err)
		}
		if err := os.Rename(tmp, s.path(e.ID)); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("fallback: rename %s: %w", e.ID, err)
		}
	}
	return nil
}

// Delete removes the entry files for ids, ignoring missing files.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fallback: delete %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) loadAll() ([]*models.MemoryEntry, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("fallback: glob: %w", err)
	}
	entries := make([]*models.MemoryEntry, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var e models.MemoryEntry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// KeywordSearch returns entries whose content or tags contain any query
// token as a case-insensitive substring, ranked by match count.
func (s *Store) KeywordSearch(ctx context.Context, query string, topK int) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		entry models.MemoryEntry
		hits  int
	}
	var scoredEntries []scored
	for _, e := range entries {
		haystack := strings.ToLower(e.Content + " " + strings.Join(e.Tags, " "))
		hits := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				hits++
			}
		}
		if hits > 0 {
			scoredEntries = append(scoredEntries, scored{entry: *e, hits: hits})
		}
	}
	sort.Slice(scoredEntries, func(i, j int) bool { return scoredEntries[i].hits > scoredEntries[j].hits })
	if topK > 0 && len(scoredEntries) > topK {
		scoredEntries = scoredEntries[:topK]
	}
	out := make([]models.MemoryEntry, len(scoredEntries))
	for i, s := range scoredEntries {
		out[i] = s.entry
	}
	return out, nil
}

// Count returns the number of stored entry files.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("fallback: glob: %w", err)
	}
	return len(matches), nil
}
