// Package outbound implements the Delivery Queue: durable, at-least-once
// delivery of outbound channel messages backed by one JSON file per
// pending delivery, with a fixed retry ladder and a dead-letter directory
// for exhausted deliveries.
package outbound

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

const (
	pendingDirName = "pending"
	failedDirName  = "failed"
)

// Queue is a disk-backed delivery queue. Each pending delivery lives as
// exactly one "<id>.json" file under baseDir/pending; a failed delivery
// (retries exhausted, or marked non-retryable) is moved to
// baseDir/failed. Writes are atomic: data lands in a "<id>.json.tmp" file
// first and is renamed into place, so a crash mid-write never leaves a
// corrupt pending file.
type Queue struct {
	mu         sync.Mutex
	pendingDir string
	failedDir  string
}

// NewQueue creates (if needed) the pending/ and failed/ directories under
// baseDir and returns a Queue ready for use. Call Recover afterward to
// pick up any deliveries left over from a previous process.
func NewQueue(baseDir string) (*Queue, error) {
	pendingDir := filepath.Join(baseDir, pendingDirName)
	failedDir := filepath.Join(baseDir, failedDirName)
	if err := os.MkdirAll(pendingDir, 0o755); err != nil {
		return nil, fmt.Errorf("outbound: create pending dir: %w", err)
	}
	if err := os.MkdirAll(failedDir, 0o755); err != nil {
		return nil, fmt.Errorf("outbound: create failed dir: %w", err)
	}
	return &Queue{pendingDir: pendingDir, failedDir: failedDir}, nil
}

// Enqueue durably records a new delivery and returns its assigned ID.
func (q *Queue) Enqueue(msg models.OutboundMessage, agentID, sessionKey string) (string, error) {
	d := models.QueuedDelivery{
		ID:          uuid.NewString(),
		Channel:     msg.Channel,
		To:          msg.ChatID,
		Text:        msg.Content,
		AgentID:     agentID,
		SessionKey:  sessionKey,
		MaxRetries:  models.DefaultMaxRetries,
		EnqueuedAt:  time.Now().UTC(),
		NextRetryAt: time.Now().UTC(),
	}
	if err := q.writePending(d); err != nil {
		return "", err
	}
	return d.ID, nil
}

// writePending atomically writes d to its pending file, tmp-then-rename.
func (q *Queue) writePending(d models.QueuedDelivery) error {
	return q.atomicWrite(q.pendingDir, d)
}

func (q *Queue) atomicWrite(dir string, d models.QueuedDelivery) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("outbound: marshal delivery %s: %w", d.ID, err)
	}
	finalPath := filepath.Join(dir, d.ID+".json")
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("outbound: create temp file for %s: %w", d.ID, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("outbound: write temp file for %s: %w", d.ID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("outbound: sync temp file for %s: %w", d.ID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("outbound: close temp file for %s: %w", d.ID, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("outbound: rename delivery %s into place: %w", d.ID, err)
	}
	return nil
}

// removePending deletes the pending file for id, if present.
func (q *Queue) removePending(id string) error {
	err := os.Remove(filepath.Join(q.pendingDir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("outbound: remove pending file %s: %w", id, err)
	}
	return nil
}

// DeadLetter moves d (with lastErr recorded) from pending into the
// failed directory. The pending copy is removed only after the failed
// copy has been durably written, so a crash between the two leaves the
// delivery recoverable rather than lost.
func (q *Queue) DeadLetter(d models.QueuedDelivery, lastErr string) error {
	d.LastError = lastErr
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.atomicWrite(q.failedDir, d); err != nil {
		return err
	}
	return q.removePending(d.ID)
}

// Reschedule persists d as given, overwriting its pending file in place.
// The caller sets the new retry count and NextRetryAt beforehand.
func (q *Queue) Reschedule(d models.QueuedDelivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writePending(d)
}

// Ack removes a successfully delivered message from the pending set.
func (q *Queue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removePending(id)
}

// Due returns every pending delivery whose NextRetryAt is at or before
// now, ordered by EnqueuedAt (oldest first) for rough FIFO fairness.
func (q *Queue) Due(now time.Time) ([]models.QueuedDelivery, error) {
	all, err := q.loadDir(q.pendingDir)
	if err != nil {
		return nil, err
	}
	due := all[:0]
	for _, d := range all {
		if !d.NextRetryAt.After(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EnqueuedAt.Before(due[j].EnqueuedAt) })
	return due, nil
}

// Depth returns the number of pending deliveries currently on disk.
func (q *Queue) Depth() (int, error) {
	entries, err := os.ReadDir(q.pendingDir)
	if err != nil {
		return 0, fmt.Errorf("outbound: read pending dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n, nil
}

// Recover sweeps the pending and failed directories on startup, deleting any stray
// "*.tmp" files left by a process that crashed mid-write. Completed
// "*.json" files require no action: they are already the durable record.
func (q *Queue) Recover() error {
	for _, dir := range []string{q.pendingDir, q.failedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("outbound: recover read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".tmp" {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("outbound: recover remove stray tmp %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func (q *Queue) loadDir(dir string) ([]models.QueuedDelivery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("outbound: read dir %s: %w", dir, err)
	}
	out := make([]models.QueuedDelivery, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("outbound: read delivery file %s: %w", e.Name(), err)
		}
		var d models.QueuedDelivery
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("outbound: decode delivery file %s: %w", e.Name(), err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FailedCount returns the number of deliveries currently dead-lettered.
func (q *Queue) FailedCount() (int, error) {
	entries, err := os.ReadDir(q.failedDir)
	if err != nil {
		return 0, fmt.Errorf("outbound: read failed dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n, nil
}
