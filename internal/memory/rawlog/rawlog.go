// Package rawlog implements Tier 2 of the memory system: an
// append-only JSONL event log of everything captured, independent of
// the long-term tier's consolidation and forgetting. It exists so the
// long-term index can always be rebuilt from scratch.
package rawlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Event is one raw capture, before any consolidation or scoring is
// applied.
type Event struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Log is an append-only JSONL file, one Event per line.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open opens (creating if needed) the raw event log at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rawlog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawlog: open: %w", err)
	}
	f.Close()
	return &Log{path: path}, nil
}

// Append writes one event to the end of the log, fsyncing before
// returning so a crash never loses an acknowledged capture.
func (l *Log) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rawlog: open for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("rawlog: marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("rawlog: write event: %w", err)
	}
	return f.Sync()
}

// ReadAll loads every event in the log, in append order. Used to
// rebuild the long-term index from scratch.
func (l *Log) ReadAll() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("rawlog: open for read: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip a malformed line rather than aborting the whole rebuild
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rawlog: scan: %w", err)
	}
	return events, nil
}

// ToMemoryEntry converts a raw event into a fresh MemoryEntry, the form
// consumed by the long-term backend's Index call.
func (e Event) ToMemoryEntry() *models.MemoryEntry {
	return &models.MemoryEntry{
		ID:             e.ID,
		Content:        e.Content,
		Type:           models.MemoryType(e.Type),
		Confidence:     1.0,
		CreatedAt:      e.CreatedAt,
		LastAccessedAt: e.CreatedAt,
		Tags:           e.Tags,
		Metadata:       e.Metadata,
		Embedding:      e.Embedding,
	}
}
