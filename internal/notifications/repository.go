package notifications

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository defines the persistence gateway for the notification
// queue.
type Repository interface {
	// EnqueueTx inserts a queue item within the caller's transaction.
	EnqueueTx(ctx context.Context, tx pgx.Tx, item *QueueItem) error

	// FetchPending claims up to limit due pending items for delivery.
	// Claiming pushes each item's next attempt time forward as a lease,
	// so concurrent workers never pick the same item.
	FetchPending(ctx context.Context, limit int) ([]*QueueItem, error)

	MarkAsSent(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, cause error) error
	MarkForRetry(ctx context.Context, id string, cause error, nextAttempt time.Time) error

	GetQueueStats(ctx context.Context) (*QueueStats, error)
}
