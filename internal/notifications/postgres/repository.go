// Package postgres provides the PostgreSQL implementation of the
// notification queue repository.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/expensio/expensio/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// deliveryLease is how far a claimed item's next attempt is pushed, so
// a crashed worker's items become visible again.
const deliveryLease = time.Minute

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnqueueTx inserts a queue item within the caller's transaction.
func (r *Repository) EnqueueTx(ctx context.Context, tx pgx.Tx, item *notifications.QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO notification_queue (id, reimbursement_id, recipient, payload, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, query,
		item.ID,
		item.ReimbursementID,
		item.Recipient,
		payload,
		item.Status,
		item.Attempts,
		item.MaxAttempts,
		item.NextAttemptAt,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// FetchPending atomically claims due pending items. The claim advances
// next_attempt_at by a lease, so another worker passing by before this
// one finishes will not see the same rows.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]*notifications.QueueItem, error) {
	query := `
		UPDATE notification_queue
		SET next_attempt_at = NOW() + $2::interval, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, reimbursement_id, recipient, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at, sent_at
	`
	rows, err := r.db.Query(ctx, query, limit, deliveryLease.String())
	if err != nil {
		return nil, fmt.Errorf("fetch pending notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*notifications.QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// MarkAsSent marks a queue item as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent', attempts = attempts + 1, sent_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	return nil
}

// MarkAsFailed marks a queue item as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, cause error) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, cause.Error()); err != nil {
		return fmt.Errorf("mark as failed: %w", err)
	}
	return nil
}

// MarkForRetry keeps a queue item pending and schedules the next
// attempt.
func (r *Repository) MarkForRetry(ctx context.Context, id string, cause error, nextAttempt time.Time) error {
	query := `
		UPDATE notification_queue
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, cause.Error(), nextAttempt); err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	return nil
}

// GetQueueStats returns queue sizes per status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_queue
	`
	var stats notifications.QueueStats
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Sent, &stats.Failed); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func scanQueueItem(row pgx.Row) (*notifications.QueueItem, error) {
	var item notifications.QueueItem
	var payload []byte
	var lastError *string
	err := row.Scan(
		&item.ID,
		&item.ReimbursementID,
		&item.Recipient,
		&payload,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextAttemptAt,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if lastError != nil {
		item.LastError = *lastError
	}

	return &item, nil
}
