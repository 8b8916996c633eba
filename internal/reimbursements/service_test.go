package reimbursements

import (
	"context"
	"testing"
	"time"

	"github.com/expensio/expensio/internal/authz"
	"github.com/expensio/expensio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTx satisfies pgx.Tx through embedding; only Commit and Rollback
// are exercised by the service.
type mockTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(_ context.Context) error {
	if m.committed {
		return pgx.ErrTxClosed
	}
	m.rolledBack = true
	return nil
}

// mockRepository implements Repository for testing.
type mockRepository struct {
	reimbs   map[int64]*domain.Reimbursement
	receipts map[string][]byte
	nextID   int64
	lastTx   *mockTx
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		reimbs:   make(map[int64]*domain.Reimbursement),
		receipts: make(map[string][]byte),
		nextID:   1,
	}
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*domain.Reimbursement, error) {
	if r, ok := m.reimbs[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepository) GetByIDAndAuthor(ctx context.Context, id, authorID int64) (*domain.Reimbursement, error) {
	r, err := m.GetByID(ctx, id)
	if err != nil || r.AuthorID != authorID {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRepository) List(_ context.Context, criteria Criteria) ([]domain.Reimbursement, error) {
	result := make([]domain.Reimbursement, 0)
	for id := int64(1); id < m.nextID; id++ {
		r, ok := m.reimbs[id]
		if !ok {
			continue
		}
		if criteria.AuthorID != nil && r.AuthorID != *criteria.AuthorID {
			continue
		}
		if criteria.ResolverID != nil && (r.ResolverID == nil || *r.ResolverID != *criteria.ResolverID) {
			continue
		}
		if criteria.Status != nil && r.Status != *criteria.Status {
			continue
		}
		if criteria.Type != nil && r.Type != *criteria.Type {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	if _, ok := m.reimbs[id]; !ok {
		return ErrNotFound
	}
	delete(m.reimbs, id)
	return nil
}

func (m *mockRepository) GetReceipt(_ context.Context, key string) ([]byte, error) {
	if data, ok := m.receipts[key]; ok {
		return data, nil
	}
	return nil, ErrReceiptNotFound
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	m.lastTx = &mockTx{}
	return m.lastTx, nil
}

func (m *mockRepository) InsertTx(_ context.Context, _ pgx.Tx, r *domain.Reimbursement) error {
	r.ID = m.nextID
	m.nextID++
	clone := *r
	m.reimbs[r.ID] = &clone
	return nil
}

func (m *mockRepository) SaveReceiptTx(_ context.Context, _ pgx.Tx, key string, data []byte) error {
	m.receipts[key] = data
	return nil
}

func (m *mockRepository) GetByIDForUpdateTx(ctx context.Context, _ pgx.Tx, id int64) (*domain.Reimbursement, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepository) GetByIDAndAuthorForUpdateTx(ctx context.Context, _ pgx.Tx, id, authorID int64) (*domain.Reimbursement, error) {
	return m.GetByIDAndAuthor(ctx, id, authorID)
}

func (m *mockRepository) UpdateTx(_ context.Context, _ pgx.Tx, r *domain.Reimbursement) error {
	if _, ok := m.reimbs[r.ID]; !ok {
		return ErrNotFound
	}
	clone := *r
	m.reimbs[r.ID] = &clone
	return nil
}

// mockUserDirectory implements UserDirectory for testing.
type mockUserDirectory struct {
	users map[int64]*domain.User
}

func (m *mockUserDirectory) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

// mockNotifier implements ResolutionNotifier for testing.
type mockNotifier struct {
	enqueued []string // recipient emails
}

func (m *mockNotifier) EnqueueResolutionTx(_ context.Context, _ pgx.Tx, _ *domain.Reimbursement, author *domain.User) error {
	m.enqueued = append(m.enqueued, author.Email)
	return nil
}

func employee(id int64) *domain.User {
	return &domain.User{
		ID:     id,
		Email:  "employee@example.com",
		Role:   domain.RoleEmployee,
		Status: domain.AccountActive,
	}
}

func manager(id int64) *domain.User {
	return &domain.User{
		ID:     id,
		Email:  "manager@example.com",
		Role:   domain.RoleFinanceManager,
		Status: domain.AccountActive,
	}
}

func newTestService(repo *mockRepository, notifier ResolutionNotifier) *Service {
	users := &mockUserDirectory{users: map[int64]*domain.User{
		1: employee(1),
		2: manager(2),
	}}
	return NewService(repo, users, notifier)
}

func submitInput() SubmitInput {
	return SubmitInput{
		Amount:      decimal.RequireFromString("250.00"),
		Description: "conference travel",
		Type:        domain.TypeTravel,
	}
}

func TestSubmit_CreatesPending(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	before := time.Now()
	reimb, err := service.Submit(context.Background(), employee(1), submitInput())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, reimb.Status)
	assert.Equal(t, int64(1), reimb.AuthorID)
	assert.Nil(t, reimb.ResolverID)
	assert.Nil(t, reimb.ResolvedAt)
	assert.Nil(t, reimb.ReceiptKey)
	assert.False(t, reimb.SubmittedAt.Before(before))
	assert.True(t, repo.lastTx.committed)
}

func TestSubmit_StoresReceipt(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	input := submitInput()
	input.Receipt = []byte("fake-pdf-bytes")
	reimb, err := service.Submit(context.Background(), employee(1), input)

	require.NoError(t, err)
	require.NotNil(t, reimb.ReceiptKey)
	assert.Equal(t, []byte("fake-pdf-bytes"), repo.receipts[*reimb.ReceiptKey])
}

func TestSubmit_RejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitInput)
	}{
		{"zero amount", func(in *SubmitInput) { in.Amount = decimal.Zero }},
		{"negative amount", func(in *SubmitInput) { in.Amount = decimal.NewFromInt(-5) }},
		{"blank description", func(in *SubmitInput) { in.Description = "  " }},
		{"unknown type", func(in *SubmitInput) { in.Type = "entertainment" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			service := newTestService(repo, nil)
			input := submitInput()
			tt.mutate(&input)

			_, err := service.Submit(context.Background(), employee(1), input)

			assert.ErrorIs(t, err, domain.ErrInvalidReimbursement)
			assert.Empty(t, repo.reimbs, "nothing persisted on validation failure")
		})
	}
}

func TestSubmit_Authorization(t *testing.T) {
	service := newTestService(newMockRepository(), nil)

	_, err := service.Submit(context.Background(), nil, submitInput())
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	_, err = service.Submit(context.Background(), manager(2), submitInput())
	assert.ErrorIs(t, err, authz.ErrPermissionDenied)
}

func TestUpdateByAuthor_MergesPatch(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	amount := decimal.RequireFromString("312.50")
	updated, err := service.UpdateByAuthor(context.Background(), employee(1), reimb.ID, UpdatePatch{
		Amount: &amount,
	})

	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))
	assert.Equal(t, "conference travel", updated.Description, "untouched fields survive")
	assert.Equal(t, domain.StatusPending, updated.Status)
}

func TestUpdateByAuthor_RejectsInvalidMerge(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	blank := "   "
	_, err = service.UpdateByAuthor(context.Background(), employee(1), reimb.ID, UpdatePatch{
		Description: &blank,
	})

	assert.ErrorIs(t, err, domain.ErrInvalidReimbursement)
	stored, _ := repo.GetByID(context.Background(), reimb.ID)
	assert.Equal(t, "conference travel", stored.Description, "no partial write")
}

func TestUpdateByAuthor_OtherAuthorLooksMissing(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	other := employee(99)
	desc := "mine now"
	_, err = service.UpdateByAuthor(context.Background(), other, reimb.ID, UpdatePatch{Description: &desc})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateByAuthor_ResolvedIsImmutable(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)
	require.NoError(t, service.Resolve(context.Background(), manager(2), reimb.ID, domain.StatusApproved))

	desc := "amended"
	_, err = service.UpdateByAuthor(context.Background(), employee(1), reimb.ID, UpdatePatch{Description: &desc})

	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolve_Approves(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	service := newTestService(repo, notifier)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	err = service.Resolve(context.Background(), manager(2), reimb.ID, domain.StatusApproved)

	require.NoError(t, err)
	stored, _ := repo.GetByID(context.Background(), reimb.ID)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	require.NotNil(t, stored.ResolverID)
	assert.Equal(t, int64(2), *stored.ResolverID)
	assert.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, []string{"employee@example.com"}, notifier.enqueued)
}

func TestResolve_Denies(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	require.NoError(t, service.Resolve(context.Background(), manager(2), reimb.ID, domain.StatusDenied))

	stored, _ := repo.GetByID(context.Background(), reimb.ID)
	assert.Equal(t, domain.StatusDenied, stored.Status)
}

func TestResolve_RejectsPendingDecision(t *testing.T) {
	service := newTestService(newMockRepository(), nil)

	err := service.Resolve(context.Background(), manager(2), 1, domain.StatusPending)

	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestResolve_SecondResolutionFails(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	require.NoError(t, service.Resolve(context.Background(), manager(2), reimb.ID, domain.StatusApproved))
	err = service.Resolve(context.Background(), manager(2), reimb.ID, domain.StatusDenied)

	assert.ErrorIs(t, err, ErrAlreadyResolved)
	stored, _ := repo.GetByID(context.Background(), reimb.ID)
	assert.Equal(t, domain.StatusApproved, stored.Status, "first decision stands")
}

func TestResolve_EmployeeCannotResolve(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	err = service.Resolve(context.Background(), employee(1), reimb.ID, domain.StatusApproved)

	assert.ErrorIs(t, err, authz.ErrPermissionDenied)
}

func TestListOwn_FiltersByAuthor(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	_, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), employee(3), submitInput())
	require.NoError(t, err)

	own, err := service.ListOwn(context.Background(), employee(1))

	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, int64(1), own[0].AuthorID)
}

func TestListOwn_EmptyIsNotAnError(t *testing.T) {
	service := newTestService(newMockRepository(), nil)

	own, err := service.ListOwn(context.Background(), employee(1))

	require.NoError(t, err)
	assert.Empty(t, own)
}

func TestListAll_FiltersByStatus(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	first, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)
	require.NoError(t, service.Resolve(context.Background(), manager(2), first.ID, domain.StatusApproved))

	status := domain.StatusPending
	pending, err := service.ListAll(context.Background(), manager(2), Criteria{Status: &status})

	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, first.ID, pending[0].ID)
}

func TestGetOwn_OtherAuthorLooksMissing(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	_, err = service.GetOwn(context.Background(), employee(99), reimb.ID)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAny_ManagerSeesEverything(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	got, err := service.GetAny(context.Background(), manager(2), reimb.ID)

	require.NoError(t, err)
	assert.Equal(t, reimb.ID, got.ID)
}

func TestReceipt_AccessRules(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	input := submitInput()
	input.Receipt = []byte("receipt-bytes")
	reimb, err := service.Submit(context.Background(), employee(1), input)
	require.NoError(t, err)

	data, err := service.Receipt(context.Background(), employee(1), reimb.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("receipt-bytes"), data)

	_, err = service.Receipt(context.Background(), manager(2), reimb.ID)
	assert.NoError(t, err, "finance managers may inspect any receipt")

	_, err = service.Receipt(context.Background(), employee(99), reimb.ID)
	assert.ErrorIs(t, err, authz.ErrPermissionDenied)
}

func TestReceipt_MissingAttachment(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil)

	reimb, err := service.Submit(context.Background(), employee(1), submitInput())
	require.NoError(t, err)

	_, err = service.Receipt(context.Background(), employee(1), reimb.ID)

	assert.ErrorIs(t, err, ErrReceiptNotFound)
}
