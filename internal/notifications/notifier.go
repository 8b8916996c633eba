package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/expensio/expensio/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultMaxAttempts = 3

// Notifier enqueues resolution notifications. It implements the
// lifecycle engine's notifier contract.
type Notifier struct {
	repo Repository
}

// NewNotifier creates a new notifier.
func NewNotifier(repo Repository) *Notifier {
	return &Notifier{repo: repo}
}

// EnqueueResolutionTx queues an email to the author about a resolved
// reimbursement, within the resolving transaction.
func (n *Notifier) EnqueueResolutionTx(ctx context.Context, tx pgx.Tx, reimb *domain.Reimbursement, author *domain.User) error {
	if reimb.ResolvedAt == nil {
		return fmt.Errorf("reimbursement %d is not resolved", reimb.ID)
	}

	now := time.Now()
	item := &QueueItem{
		ID:              uuid.New().String(),
		ReimbursementID: reimb.ID,
		Recipient:       author.Email,
		Payload: ResolutionPayload{
			ReimbursementID: reimb.ID,
			Decision:        string(reimb.Status),
			Amount:          reimb.Amount.StringFixed(2),
			Description:     reimb.Description,
			Type:            string(reimb.Type),
			AuthorName:      author.FullName(),
			ResolvedAt:      *reimb.ResolvedAt,
		},
		Status:        QueueStatusPending,
		MaxAttempts:   defaultMaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return n.repo.EnqueueTx(ctx, tx, item)
}
