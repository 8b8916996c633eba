package authz

import (
	"testing"

	"github.com/expensio/expensio/internal/domain"
	"github.com/stretchr/testify/assert"
)

func actorWithRole(role domain.Role) *domain.User {
	return &domain.User{ID: 1, Role: role, Status: domain.AccountActive}
}

func TestAuthorize_RoleMatrix(t *testing.T) {
	tests := []struct {
		role    domain.Role
		op      Operation
		isOwner bool
		allowed bool
	}{
		{domain.RoleEmployee, OpSubmitReimbursement, true, true},
		{domain.RoleEmployee, OpReadOwnReimbursement, true, true},
		{domain.RoleEmployee, OpUpdateOwnReimbursement, true, true},
		{domain.RoleEmployee, OpReadAnyReimbursement, false, false},
		{domain.RoleEmployee, OpListAllReimbursements, false, false},
		{domain.RoleEmployee, OpResolveReimbursement, false, false},
		{domain.RoleEmployee, OpManageUsers, false, false},

		{domain.RoleFinanceManager, OpReadAnyReimbursement, false, true},
		{domain.RoleFinanceManager, OpListAllReimbursements, false, true},
		{domain.RoleFinanceManager, OpResolveReimbursement, false, true},
		{domain.RoleFinanceManager, OpSubmitReimbursement, true, false},
		{domain.RoleFinanceManager, OpUpdateOwnReimbursement, true, false},
		{domain.RoleFinanceManager, OpManageUsers, false, false},

		{domain.RoleAdmin, OpManageUsers, false, true},
		{domain.RoleAdmin, OpCheckAccountAvailability, false, true},
		{domain.RoleAdmin, OpSubmitReimbursement, true, false},
		{domain.RoleAdmin, OpResolveReimbursement, false, false},
		{domain.RoleAdmin, OpListAllReimbursements, false, false},

		{domain.RoleDefault, OpSubmitReimbursement, true, false},
		{domain.RoleDefault, OpManageUsers, false, false},
	}

	for _, tt := range tests {
		name := string(tt.role) + "/" + string(tt.op)
		t.Run(name, func(t *testing.T) {
			err := Authorize(actorWithRole(tt.role), tt.op, tt.isOwner)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestAuthorize_NilActor(t *testing.T) {
	err := Authorize(nil, OpSubmitReimbursement, true)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorize_DeletedActor(t *testing.T) {
	actor := actorWithRole(domain.RoleEmployee)
	actor.Status = domain.AccountDeleted

	err := Authorize(actor, OpSubmitReimbursement, true)

	// A deleted account has no identity at all, not merely reduced
	// privileges.
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorize_DeletedRole(t *testing.T) {
	err := Authorize(actorWithRole(domain.RoleDeleted), OpReadOwnReimbursement, true)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorize_OwnershipScope(t *testing.T) {
	actor := actorWithRole(domain.RoleEmployee)

	assert.NoError(t, Authorize(actor, OpUpdateOwnReimbursement, true))
	assert.ErrorIs(t, Authorize(actor, OpUpdateOwnReimbursement, false), ErrPermissionDenied)
	assert.ErrorIs(t, Authorize(actor, OpReadOwnReimbursement, false), ErrPermissionDenied)
}

func TestCanResolve(t *testing.T) {
	assert.NoError(t, CanResolve(actorWithRole(domain.RoleFinanceManager)))
	assert.ErrorIs(t, CanResolve(actorWithRole(domain.RoleEmployee)), ErrPermissionDenied)
	assert.ErrorIs(t, CanResolve(nil), ErrUnauthenticated)
}
