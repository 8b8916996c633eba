package reimbursements

import (
	"context"

	"github.com/expensio/expensio/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Criteria filters reimbursement listings. Nil fields are ignored. All
// listings are ordered by id.
type Criteria struct {
	AuthorID   *int64
	ResolverID *int64
	Status     *domain.ReimbursementStatus
	Type       *domain.ReimbursementType
}

// Repository defines the persistence gateway for reimbursements.
//
// The Tx variants exist because every multi-step lifecycle operation
// (submit with receipt, author update, resolve) must run as a single
// read-modify-write transaction; the plain variants serve one-shot
// reads.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Reimbursement, error)
	GetByIDAndAuthor(ctx context.Context, id, authorID int64) (*domain.Reimbursement, error)
	List(ctx context.Context, criteria Criteria) ([]domain.Reimbursement, error)
	Delete(ctx context.Context, id int64) error

	GetReceipt(ctx context.Context, key string) ([]byte, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
	InsertTx(ctx context.Context, tx pgx.Tx, r *domain.Reimbursement) error
	SaveReceiptTx(ctx context.Context, tx pgx.Tx, key string, data []byte) error
	GetByIDForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Reimbursement, error)
	GetByIDAndAuthorForUpdateTx(ctx context.Context, tx pgx.Tx, id, authorID int64) (*domain.Reimbursement, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, r *domain.Reimbursement) error
}

// UserDirectory resolves user ids to accounts, used to address
// resolution notifications.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// ResolutionNotifier enqueues a notification about a resolved
// reimbursement within the resolving transaction, so the notification
// exists iff the resolution committed.
type ResolutionNotifier interface {
	EnqueueResolutionTx(ctx context.Context, tx pgx.Tx, reimb *domain.Reimbursement, author *domain.User) error
}
