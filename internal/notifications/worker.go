package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expensio/expensio/internal/notifications/email"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:         50,
		PollInterval:      5 * time.Second,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        2,
	}
}

// Worker drains the notification queue and sends emails.
type Worker struct {
	config   WorkerConfig
	repo     Repository
	sender   *email.Sender
	renderer *Renderer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, repo Repository, sender *email.Sender, renderer *Renderer) *Worker {
	return &Worker{
		config:   config,
		repo:     repo,
		sender:   sender,
		renderer: renderer,
		stopCh:   make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("notification worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	items, err := w.repo.FetchPending(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch pending notifications", "worker", workerID, "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.Debug("processing notifications", "worker", workerID, "count", len(items))

	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *QueueItem) {
	start := time.Now()

	subject, body, err := w.renderer.Render(item.Payload)
	if err != nil {
		slog.Error("failed to render notification", "item_id", item.ID, "error", err)
		w.markFailed(ctx, item.ID, err)
		recordNotificationSent("failed")
		return
	}

	err = w.sender.Send(ctx, item.Recipient, subject, body)
	duration := time.Since(start)

	if err != nil {
		w.handleSendError(ctx, item, err)
		return
	}

	if err := w.repo.MarkAsSent(ctx, item.ID); err != nil {
		slog.Error("failed to mark as sent", "item_id", item.ID, "error", err)
	}

	recordNotificationSent("success")
	recordNotificationDuration(duration)

	slog.Debug("notification sent",
		"item_id", item.ID,
		"reimbursement_id", item.ReimbursementID,
		"duration", duration,
	)
}

func (w *Worker) handleSendError(ctx context.Context, item *QueueItem, err error) {
	slog.Warn("send failed",
		"item_id", item.ID,
		"attempt", item.Attempts+1,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	if !email.IsRetryable(err) {
		w.markFailed(ctx, item.ID, err)
		recordNotificationSent("failed")
		return
	}

	if item.Attempts+1 >= item.MaxAttempts {
		w.markFailed(ctx, item.ID, fmt.Errorf("max attempts exceeded: %w", err))
		recordNotificationSent("failed")
		return
	}

	nextAttempt := w.calculateNextAttempt(item.Attempts + 1)
	if markErr := w.repo.MarkForRetry(ctx, item.ID, err, nextAttempt); markErr != nil {
		slog.Error("failed to mark for retry", "item_id", item.ID, "error", markErr)
	}
	recordNotificationSent("retry")

	slog.Info("notification scheduled for retry",
		"item_id", item.ID,
		"next_attempt", nextAttempt,
	)
}

func (w *Worker) markFailed(ctx context.Context, id string, cause error) {
	if err := w.repo.MarkAsFailed(ctx, id, cause); err != nil {
		slog.Error("failed to mark as failed", "item_id", id, "error", err)
	}
}

func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return time.Now().Add(time.Duration(backoff))
}
