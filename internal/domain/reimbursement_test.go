package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validReimbursement() Reimbursement {
	return Reimbursement{
		Amount:      decimal.NewFromFloat(250.00),
		Description: "conference travel",
		Status:      StatusPending,
		Type:        TypeTravel,
		AuthorID:    7,
	}
}

func TestReimbursementValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Reimbursement)
		wantErr bool
	}{
		{"valid", func(*Reimbursement) {}, false},
		{"zero amount", func(r *Reimbursement) { r.Amount = decimal.Zero }, true},
		{"negative amount", func(r *Reimbursement) { r.Amount = decimal.NewFromInt(-10) }, true},
		{"empty description", func(r *Reimbursement) { r.Description = "" }, true},
		{"whitespace description", func(r *Reimbursement) { r.Description = "   \t" }, true},
		{"unknown type", func(r *Reimbursement) { r.Type = "entertainment" }, true},
		{"missing author", func(r *Reimbursement) { r.AuthorID = 0 }, true},
		{"fractional cent amount", func(r *Reimbursement) { r.Amount = decimal.RequireFromString("0.01") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReimbursement()
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReimbursement)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusCodesAreStable(t *testing.T) {
	assert.Equal(t, 1, StatusPending.Code())
	assert.Equal(t, 2, StatusApproved.Code())
	assert.Equal(t, 3, StatusDenied.Code())
	assert.Equal(t, -1, ReimbursementStatus("bogus").Code())
}

func TestStatusFromCode(t *testing.T) {
	status, ok := StatusFromCode(2)
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, status)

	_, ok = StatusFromCode(99)
	assert.False(t, ok)
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusDenied.IsTerminal())
}

func TestTypeCodesAreStable(t *testing.T) {
	assert.Equal(t, 1, TypeLodging.Code())
	assert.Equal(t, 2, TypeTravel.Code())
	assert.Equal(t, 3, TypeFood.Code())
	assert.Equal(t, 4, TypeOther.Code())
	assert.Equal(t, -1, ReimbursementType("bogus").Code())
}

func TestRoleCodesAreStable(t *testing.T) {
	assert.Equal(t, 0, RoleDefault.Code())
	assert.Equal(t, 1, RoleAdmin.Code())
	assert.Equal(t, 2, RoleFinanceManager.Code())
	assert.Equal(t, 3, RoleEmployee.Code())
	assert.Equal(t, 4, RoleDeleted.Code())
}

func TestRoleFromCode(t *testing.T) {
	assert.Equal(t, RoleFinanceManager, RoleFromCode(2))
	assert.Equal(t, RoleDefault, RoleFromCode(42))
}

func TestUserHelpers(t *testing.T) {
	u := User{FirstName: "Jane", LastName: "Doe", Status: AccountActive}
	assert.Equal(t, "Jane Doe", u.FullName())
	assert.False(t, u.IsDeleted())

	u.Status = AccountDeleted
	assert.True(t, u.IsDeleted())
}
