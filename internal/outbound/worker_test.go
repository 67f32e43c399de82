package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	f.calls++
	return f.err
}

func TestWorkerAcksOnSuccessfulSend(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}, "", "")

	sender := &fakeSender{}
	w := NewWorker(q, sender, time.Second, nil, nil)
	w.ScanOnce(context.Background())

	if sender.calls != 1 {
		t.Fatalf("expected 1 send attempt, got %d", sender.calls)
	}
	depth, _ := q.Depth()
	if depth != 0 {
		t.Fatalf("expected delivery acked (depth 0), got %d", depth)
	}
	_ = id
}

func TestWorkerReschedulesOnTransientFailure(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}, "", "")

	sender := &fakeSender{err: errors.New("network blip")}
	w := NewWorker(q, sender, time.Second, nil, nil)
	w.ScanOnce(context.Background())

	all, err := q.loadDir(q.pendingDir)
	if err != nil {
		t.Fatalf("loadDir: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected delivery still pending, got %d entries", len(all))
	}
	if all[0].ID != id {
		t.Fatalf("unexpected delivery id %s", all[0].ID)
	}
	if all[0].RetryCount != 1 {
		t.Fatalf("expected retryCount 1, got %d", all[0].RetryCount)
	}
	if !all[0].NextRetryAt.After(time.Now().UTC()) {
		t.Fatal("expected NextRetryAt to be pushed into the future")
	}
}

func TestWorkerDeadLettersAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}, "", "")

	all, _ := q.loadDir(q.pendingDir)
	d := all[0]
	d.RetryCount = d.MaxRetries
	if err := q.Reschedule(d); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	sender := &fakeSender{err: errors.New("still failing")}
	w := NewWorker(q, sender, time.Second, nil, nil)
	w.ScanOnce(context.Background())

	depth, _ := q.Depth()
	if depth != 0 {
		t.Fatalf("expected delivery removed from pending, got depth %d", depth)
	}
	failed, _ := q.FailedCount()
	if failed != 1 {
		t.Fatalf("expected 1 dead-lettered delivery, got %d", failed)
	}
	_ = id
}

func TestWorkerDeadLettersNonRetryableImmediately(t *testing.T) {
	q := newTestQueue(t)
	_, _ = q.Enqueue(models.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}, "", "")

	all, _ := q.loadDir(q.pendingDir)
	d := all[0]
	d.NonRetryable = true
	if err := q.Reschedule(d); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	sender := &fakeSender{err: errors.New("bad recipient")}
	w := NewWorker(q, sender, time.Second, nil, nil)
	w.ScanOnce(context.Background())

	failed, _ := q.FailedCount()
	if failed != 1 {
		t.Fatalf("expected immediate dead-letter for non-retryable delivery, got %d failed", failed)
	}
}
