// Package reimbursements implements the reimbursement lifecycle:
// submission by employees, author updates while pending, and resolution
// by finance managers.
package reimbursements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expensio/expensio/internal/authz"
	"github.com/expensio/expensio/internal/domain"
	"github.com/expensio/expensio/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Service implements the reimbursement lifecycle engine. It holds no
// state besides its collaborators and is constructed once per process.
type Service struct {
	repo     Repository
	users    UserDirectory
	notifier ResolutionNotifier // nil when notifications are disabled
}

// NewService creates a new reimbursement service.
func NewService(repo Repository, users UserDirectory, notifier ResolutionNotifier) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
	}
}

// SubmitInput holds data for a new reimbursement.
type SubmitInput struct {
	Amount      decimal.Decimal
	Description string
	Type        domain.ReimbursementType
	Receipt     []byte // optional attachment
}

// Submit validates and persists a new reimbursement authored by the
// actor. The stored record is always pending with resolver and resolved
// unset; the submitted timestamp is taken at creation and never changes.
func (s *Service) Submit(ctx context.Context, actor *domain.User, input SubmitInput) (*domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpSubmitReimbursement, true); err != nil {
		return nil, err
	}

	reimb := &domain.Reimbursement{
		Amount:      input.Amount,
		Description: input.Description,
		Status:      domain.StatusPending,
		Type:        input.Type,
		AuthorID:    actor.ID,
		SubmittedAt: time.Now(),
	}
	if len(input.Receipt) > 0 {
		key := uuid.New().String()
		reimb.ReceiptKey = &key
	}

	if err := reimb.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if reimb.ReceiptKey != nil {
		if err := s.repo.SaveReceiptTx(ctx, tx, *reimb.ReceiptKey, input.Receipt); err != nil {
			return nil, fmt.Errorf("save receipt: %w", err)
		}
	}

	if err := s.repo.InsertTx(ctx, tx, reimb); err != nil {
		return nil, fmt.Errorf("insert reimbursement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	metrics.ReimbursementsSubmitted.Inc()

	return reimb, nil
}

// UpdatePatch holds the fields an author may change while a
// reimbursement is pending. Nil fields are left untouched. Status is
// deliberately absent: resolution is the only status mutation path.
type UpdatePatch struct {
	Amount      *decimal.Decimal
	Description *string
	Type        *domain.ReimbursementType
}

// UpdateByAuthor applies a patch to a pending reimbursement owned by
// the actor. The merged record is re-validated against the full field
// invariants before the write. A record authored by someone else is
// reported as not found.
func (s *Service) UpdateByAuthor(ctx context.Context, actor *domain.User, reimbID int64, patch UpdatePatch) (*domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpUpdateOwnReimbursement, true); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	reimb, err := s.repo.GetByIDAndAuthorForUpdateTx(ctx, tx, reimbID, actor.ID)
	if err != nil {
		return nil, err
	}

	if reimb.IsResolved() {
		return nil, ErrAlreadyResolved
	}

	if patch.Amount != nil {
		reimb.Amount = *patch.Amount
	}
	if patch.Description != nil {
		reimb.Description = *patch.Description
	}
	if patch.Type != nil {
		reimb.Type = *patch.Type
	}

	if err := reimb.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTx(ctx, tx, reimb); err != nil {
		return nil, fmt.Errorf("update reimbursement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return reimb, nil
}

// Resolve transitions a pending reimbursement to approved or denied,
// recording the actor as resolver and stamping the resolution time. The
// read, state check and write share one transaction, so concurrent
// resolutions cannot both succeed. A notification to the author is
// enqueued in the same transaction.
func (s *Service) Resolve(ctx context.Context, actor *domain.User, reimbID int64, decision domain.ReimbursementStatus) error {
	if decision != domain.StatusApproved && decision != domain.StatusDenied {
		return fmt.Errorf("%w: got %q", ErrInvalidDecision, decision)
	}
	if err := authz.CanResolve(actor); err != nil {
		return err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	reimb, err := s.repo.GetByIDForUpdateTx(ctx, tx, reimbID)
	if err != nil {
		return err
	}

	if reimb.IsResolved() {
		return ErrAlreadyResolved
	}

	now := time.Now()
	reimb.Status = decision
	reimb.ResolverID = &actor.ID
	reimb.ResolvedAt = &now

	if err := s.repo.UpdateTx(ctx, tx, reimb); err != nil {
		return fmt.Errorf("update reimbursement: %w", err)
	}

	if s.notifier != nil {
		author, err := s.users.GetByID(ctx, reimb.AuthorID)
		if err != nil {
			return fmt.Errorf("load author for notification: %w", err)
		}
		if err := s.notifier.EnqueueResolutionTx(ctx, tx, reimb, author); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	metrics.ReimbursementsResolved.WithLabelValues(string(decision)).Inc()

	return nil
}

// ListOwn returns the actor's reimbursements, ordered by id. No matches
// is a valid empty result.
func (s *Service) ListOwn(ctx context.Context, actor *domain.User) ([]domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpReadOwnReimbursement, true); err != nil {
		return nil, err
	}
	authorID := actor.ID
	return s.repo.List(ctx, Criteria{AuthorID: &authorID})
}

// ListAll returns reimbursements matching the criteria across all
// authors, for finance managers.
func (s *Service) ListAll(ctx context.Context, actor *domain.User, criteria Criteria) ([]domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpListAllReimbursements, false); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, criteria)
}

// GetOwn returns one of the actor's reimbursements. A record authored
// by a different user is reported as not found, never exposed.
func (s *Service) GetOwn(ctx context.Context, actor *domain.User, reimbID int64) (*domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpReadOwnReimbursement, true); err != nil {
		return nil, err
	}
	return s.repo.GetByIDAndAuthor(ctx, reimbID, actor.ID)
}

// GetAny returns any reimbursement by id, for finance managers.
func (s *Service) GetAny(ctx context.Context, actor *domain.User, reimbID int64) (*domain.Reimbursement, error) {
	if err := authz.Authorize(actor, authz.OpReadAnyReimbursement, false); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, reimbID)
}

// Receipt returns the stored receipt for a reimbursement the actor may
// read: the author, or any finance manager.
func (s *Service) Receipt(ctx context.Context, actor *domain.User, reimbID int64) ([]byte, error) {
	reimb, err := s.repo.GetByID(ctx, reimbID)
	if err != nil {
		return nil, err
	}

	isOwner := actor != nil && reimb.AuthorID == actor.ID
	if isOwner {
		err = authz.Authorize(actor, authz.OpReadOwnReimbursement, true)
	} else {
		err = authz.Authorize(actor, authz.OpReadAnyReimbursement, false)
	}
	if err != nil {
		return nil, err
	}

	if reimb.ReceiptKey == nil {
		return nil, ErrReceiptNotFound
	}
	return s.repo.GetReceipt(ctx, *reimb.ReceiptKey)
}

// rollback is a no-op on committed transactions.
func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
