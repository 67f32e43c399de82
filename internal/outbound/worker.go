package outbound

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DrayChou/personal-ai-assistant/internal/backoff"
	"github.com/DrayChou/personal-ai-assistant/internal/observability"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Sender delivers one outbound message to its channel. It is typically
// backed by the channel bus's Send method.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// ErrNonRetryable, when returned (or wrapped) by a Sender, tells the
// worker to dead-letter the delivery immediately instead of rescheduling
// it against the retry ladder.
var ErrNonRetryable = errors.New("outbound: non-retryable delivery failure")

// Worker periodically scans the Queue for due deliveries and attempts to
// send each one, rescheduling failures per the fixed retry ladder in
// internal/backoff and dead-lettering once MaxRetries is exhausted.
type Worker struct {
	queue    *Queue
	sender   Sender
	logger   *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
}

// NewWorker constructs a Worker. If logger or metrics are nil, sane
// defaults are substituted (slog.Default, an unregistered test Metrics).
func NewWorker(queue *Queue, sender Sender, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{queue: queue, sender: sender, logger: logger, metrics: metrics, interval: interval}
}

// Run blocks, scanning the queue every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

// scanOnce drains every currently-due delivery once. ScanOnce exports it
// so tests can drive a single pass deterministically instead of waiting
// on the ticker.
func (w *Worker) scanOnce(ctx context.Context) {
	due, err := w.queue.Due(time.Now().UTC())
	if err != nil {
		w.logger.Error("outbound: scan failed", "error", err)
		return
	}

	depth, err := w.queue.Depth()
	if err == nil {
		w.metrics.DeliveryQueueDepth.Set(float64(depth))
	}

	for _, d := range due {
		w.attempt(ctx, d)
	}
}

// ScanOnce runs a single scan pass; exported for callers (tests, manual
// flush commands) that want to drive delivery synchronously.
func (w *Worker) ScanOnce(ctx context.Context) {
	w.scanOnce(ctx)
}

func (w *Worker) attempt(ctx context.Context, d models.QueuedDelivery) {
	msg := models.OutboundMessage{Channel: d.Channel, ChatID: d.To, Content: d.Text}

	err := w.sender.Send(ctx, msg)
	if err == nil {
		if ackErr := w.queue.Ack(d.ID); ackErr != nil {
			w.logger.Error("outbound: ack failed", "delivery_id", d.ID, "error", ackErr)
		}
		return
	}

	nonRetryable := d.NonRetryable || errors.Is(err, ErrNonRetryable)
	d.RetryCount++
	d.LastError = err.Error()

	if nonRetryable || d.RetryCount >= d.MaxRetries {
		w.logger.Warn("outbound: delivery exhausted, dead-lettering",
			"delivery_id", d.ID, "channel", d.Channel, "retries", d.RetryCount, "error", err)
		if dlErr := w.queue.DeadLetter(d, err.Error()); dlErr != nil {
			w.logger.Error("outbound: dead-letter write failed", "delivery_id", d.ID, "error", dlErr)
			return
		}
		w.metrics.DeliveryDeadLetterTotal.Inc()
		return
	}

	d.NextRetryAt = time.Now().UTC().Add(backoff.ForDelivery(d.RetryCount - 1))
	if err := w.queue.Reschedule(d); err != nil {
		w.logger.Error("outbound: reschedule failed", "delivery_id", d.ID, "error", err)
	}
}
