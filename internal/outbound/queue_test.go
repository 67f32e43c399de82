package outbound

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := NewQueue(dir)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}

func TestEnqueueWritesPendingFile(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "123", Content: "hi"}, "agent1", "sess1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	path := filepath.Join(q.pendingDir, id+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected pending file to exist: %v", err)
	}

	depth, err := q.Depth()
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}
}

func TestDueOnlyReturnsMessagesAtOrBeforeNow(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "123", Content: "hi"}, "", "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	due, err := q.Due(time.Now().UTC())
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected 1 due delivery with id %s, got %+v", id, due)
	}

	all, _ := q.loadDir(q.pendingDir)
	all[0].NextRetryAt = time.Now().UTC().Add(time.Hour)
	if err := q.Reschedule(all[0]); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	due, err = q.Due(time.Now().UTC())
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected 0 due deliveries after rescheduling into the future, got %d", len(due))
	}
}

func TestAckRemovesPendingFile(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "x"}, "", "")

	if err := q.Ack(id); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	depth, _ := q.Depth()
	if depth != 0 {
		t.Fatalf("expected depth 0 after ack, got %d", depth)
	}
}

func TestDeadLetterMovesDeliveryToFailedDir(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "x"}, "", "")

	all, _ := q.loadDir(q.pendingDir)
	if err := q.DeadLetter(all[0], "boom"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	depth, _ := q.Depth()
	if depth != 0 {
		t.Fatalf("expected pending depth 0 after dead-letter, got %d", depth)
	}
	failed, err := q.FailedCount()
	if err != nil {
		t.Fatalf("FailedCount: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed delivery, got %d", failed)
	}

	failedPath := filepath.Join(q.failedDir, id+".json")
	if _, err := os.Stat(failedPath); err != nil {
		t.Fatalf("expected failed file to exist: %v", err)
	}
}

func TestRecoverRemovesStrayTmpFiles(t *testing.T) {
	q := newTestQueue(t)
	stray := filepath.Join(q.pendingDir, "orphan.json.tmp")
	if err := os.WriteFile(stray, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write stray tmp: %v", err)
	}

	if err := q.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("expected stray tmp file to be removed, stat err = %v", err)
	}
}
