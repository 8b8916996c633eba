// Package postgres provides the PostgreSQL implementation of the
// reimbursements repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/expensio/expensio/internal/domain"
	"github.com/expensio/expensio/internal/reimbursements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements reimbursements.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const reimbColumns = `id, amount, description, status_code, type_code, author_id, resolver_id, receipt_key, submitted_at, resolved_at`

// GetByID retrieves a reimbursement by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Reimbursement, error) {
	query := `SELECT ` + reimbColumns + ` FROM reimbursements WHERE id = $1`
	return scanReimbursement(r.db.QueryRow(ctx, query, id), "get reimbursement")
}

// GetByIDAndAuthor retrieves a reimbursement only if the author matches.
func (r *Repository) GetByIDAndAuthor(ctx context.Context, id, authorID int64) (*domain.Reimbursement, error) {
	query := `SELECT ` + reimbColumns + ` FROM reimbursements WHERE id = $1 AND author_id = $2`
	return scanReimbursement(r.db.QueryRow(ctx, query, id, authorID), "get reimbursement by author")
}

// List retrieves reimbursements matching the criteria, ordered by id.
func (r *Repository) List(ctx context.Context, criteria reimbursements.Criteria) ([]domain.Reimbursement, error) {
	query := `SELECT ` + reimbColumns + ` FROM reimbursements`

	var conditions []string
	var args []interface{}

	addCondition := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if criteria.AuthorID != nil {
		addCondition("author_id", *criteria.AuthorID)
	}
	if criteria.ResolverID != nil {
		addCondition("resolver_id", *criteria.ResolverID)
	}
	if criteria.Status != nil {
		addCondition("status_code", criteria.Status.Code())
	}
	if criteria.Type != nil {
		addCondition("type_code", criteria.Type.Code())
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reimbursements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Reimbursement, 0)
	for rows.Next() {
		reimb, err := scanReimbursementRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reimbursement: %w", err)
		}
		result = append(result, *reimb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reimbursements: %w", err)
	}
	return result, nil
}

// Delete removes a reimbursement row. Receipts cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM reimbursements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reimbursement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reimbursements.ErrNotFound
	}
	return nil
}

// GetReceipt retrieves stored receipt bytes by key.
func (r *Repository) GetReceipt(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM receipts WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reimbursements.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return data, nil
}

// BeginTx starts a transaction on the pool.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// InsertTx creates a reimbursement row within the transaction and fills
// in the assigned id.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, reimb *domain.Reimbursement) error {
	query := `
		INSERT INTO reimbursements (amount, description, status_code, type_code, author_id, resolver_id, receipt_key, submitted_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		reimb.Amount,
		reimb.Description,
		reimb.Status.Code(),
		reimb.Type.Code(),
		reimb.AuthorID,
		reimb.ResolverID,
		reimb.ReceiptKey,
		reimb.SubmittedAt,
		reimb.ResolvedAt,
	).Scan(&reimb.ID)

	if err != nil {
		return fmt.Errorf("insert reimbursement: %w", err)
	}
	return nil
}

// SaveReceiptTx stores receipt bytes under the key within the
// transaction.
func (r *Repository) SaveReceiptTx(ctx context.Context, tx pgx.Tx, key string, data []byte) error {
	if _, err := tx.Exec(ctx, `INSERT INTO receipts (key, data) VALUES ($1, $2)`, key, data); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

// GetByIDForUpdateTx reads a reimbursement with a row lock, so the
// read-validate-write sequence of a resolve cannot race another writer.
func (r *Repository) GetByIDForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Reimbursement, error) {
	query := `SELECT ` + reimbColumns + ` FROM reimbursements WHERE id = $1 FOR UPDATE`
	return scanReimbursement(tx.QueryRow(ctx, query, id), "get reimbursement for update")
}

// GetByIDAndAuthorForUpdateTx reads an author-owned reimbursement with
// a row lock.
func (r *Repository) GetByIDAndAuthorForUpdateTx(ctx context.Context, tx pgx.Tx, id, authorID int64) (*domain.Reimbursement, error) {
	query := `SELECT ` + reimbColumns + ` FROM reimbursements WHERE id = $1 AND author_id = $2 FOR UPDATE`
	return scanReimbursement(tx.QueryRow(ctx, query, id, authorID), "get reimbursement by author for update")
}

// UpdateTx persists the mutable fields within the transaction. Author
// and submitted timestamp are immutable and never written.
func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, reimb *domain.Reimbursement) error {
	query := `
		UPDATE reimbursements
		SET amount = $2, description = $3, status_code = $4, type_code = $5, resolver_id = $6, resolved_at = $7
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query,
		reimb.ID,
		reimb.Amount,
		reimb.Description,
		reimb.Status.Code(),
		reimb.Type.Code(),
		reimb.ResolverID,
		reimb.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update reimbursement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reimbursements.ErrNotFound
	}
	return nil
}

func scanReimbursement(row pgx.Row, op string) (*domain.Reimbursement, error) {
	reimb, err := scanReimbursementRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reimbursements.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reimb, nil
}

func scanReimbursementRow(row pgx.Row) (*domain.Reimbursement, error) {
	var reimb domain.Reimbursement
	var statusCode, typeCode int
	err := row.Scan(
		&reimb.ID,
		&reimb.Amount,
		&reimb.Description,
		&statusCode,
		&typeCode,
		&reimb.AuthorID,
		&reimb.ResolverID,
		&reimb.ReceiptKey,
		&reimb.SubmittedAt,
		&reimb.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	status, ok := domain.StatusFromCode(statusCode)
	if !ok {
		return nil, fmt.Errorf("unknown status code %d", statusCode)
	}
	typ, ok := domain.TypeFromCode(typeCode)
	if !ok {
		return nil, fmt.Errorf("unknown type code %d", typeCode)
	}
	reimb.Status = status
	reimb.Type = typ

	return &reimb, nil
}
