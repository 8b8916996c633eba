package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/expensio/expensio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	enqueued []*QueueItem
}

func (m *mockRepository) EnqueueTx(_ context.Context, _ pgx.Tx, item *QueueItem) error {
	m.enqueued = append(m.enqueued, item)
	return nil
}

func (m *mockRepository) FetchPending(_ context.Context, _ int) ([]*QueueItem, error) {
	return nil, nil
}

func (m *mockRepository) MarkAsSent(_ context.Context, _ string) error { return nil }

func (m *mockRepository) MarkAsFailed(_ context.Context, _ string, _ error) error { return nil }

func (m *mockRepository) MarkForRetry(_ context.Context, _ string, _ error, _ time.Time) error {
	return nil
}

func (m *mockRepository) GetQueueStats(_ context.Context) (*QueueStats, error) {
	return &QueueStats{}, nil
}

func TestEnqueueResolutionTx(t *testing.T) {
	repo := &mockRepository{}
	notifier := NewNotifier(repo)

	resolvedAt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	resolverID := int64(2)
	reimb := &domain.Reimbursement{
		ID:          42,
		Amount:      decimal.RequireFromString("250.00"),
		Description: "conference travel",
		Status:      domain.StatusApproved,
		Type:        domain.TypeTravel,
		AuthorID:    1,
		ResolverID:  &resolverID,
		ResolvedAt:  &resolvedAt,
	}
	author := &domain.User{
		ID:        1,
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
	}

	err := notifier.EnqueueResolutionTx(context.Background(), nil, reimb, author)

	require.NoError(t, err)
	require.Len(t, repo.enqueued, 1)

	item := repo.enqueued[0]
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, int64(42), item.ReimbursementID)
	assert.Equal(t, "jane@example.com", item.Recipient)
	assert.Equal(t, QueueStatusPending, item.Status)
	assert.Equal(t, defaultMaxAttempts, item.MaxAttempts)
	assert.Equal(t, "approved", item.Payload.Decision)
	assert.Equal(t, "250.00", item.Payload.Amount)
	assert.Equal(t, "Jane Doe", item.Payload.AuthorName)
	assert.Equal(t, resolvedAt, item.Payload.ResolvedAt)
}

func TestEnqueueResolutionTx_RequiresResolvedRecord(t *testing.T) {
	notifier := NewNotifier(&mockRepository{})

	reimb := &domain.Reimbursement{
		ID:       43,
		Status:   domain.StatusPending,
		AuthorID: 1,
	}

	err := notifier.EnqueueResolutionTx(context.Background(), nil, reimb, &domain.User{ID: 1})

	assert.Error(t, err)
}
