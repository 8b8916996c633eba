// Package authz maps (actor role, operation, resource ownership) to an
// allow or deny decision. It is the single place the role rules live;
// handlers and services ask it instead of inspecting roles themselves.
package authz

import (
	"errors"
	"fmt"

	"github.com/expensio/expensio/internal/domain"
)

var (
	// ErrUnauthenticated means no authenticated actor was supplied.
	// Maps to 401 at the HTTP layer.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrPermissionDenied means the authenticated actor's role does not
	// permit the operation. Maps to 403 at the HTTP layer.
	ErrPermissionDenied = errors.New("permission denied")
)

// Operation is a named action an actor can request.
type Operation string

// Operations.
const (
	OpSubmitReimbursement      Operation = "reimbursement.submit"
	OpReadOwnReimbursement     Operation = "reimbursement.read_own"
	OpUpdateOwnReimbursement   Operation = "reimbursement.update_own"
	OpReadAnyReimbursement     Operation = "reimbursement.read_any"
	OpListAllReimbursements    Operation = "reimbursement.list_all"
	OpResolveReimbursement     Operation = "reimbursement.resolve"
	OpManageUsers              Operation = "users.manage"
	OpCheckAccountAvailability Operation = "users.availability"
)

// rolePermissions lists the operations each role may perform.
// Ownership-constrained operations additionally require isOwner.
var rolePermissions = map[domain.Role]map[Operation]bool{
	domain.RoleEmployee: {
		OpSubmitReimbursement:    true,
		OpReadOwnReimbursement:   true,
		OpUpdateOwnReimbursement: true,
	},
	domain.RoleFinanceManager: {
		OpReadAnyReimbursement:  true,
		OpListAllReimbursements: true,
		OpResolveReimbursement:  true,
	},
	domain.RoleAdmin: {
		OpManageUsers:              true,
		OpCheckAccountAvailability: true,
	},
}

// ownershipScoped marks operations that are only permitted against
// resources the actor owns.
var ownershipScoped = map[Operation]bool{
	OpReadOwnReimbursement:   true,
	OpUpdateOwnReimbursement: true,
	OpSubmitReimbursement:    true,
}

// Authorize decides whether the actor may perform op. isOwner reports
// whether the actor owns the target resource (for submit, whether the
// actor is the author being recorded).
//
// A nil or deleted actor fails with ErrUnauthenticated; an authenticated
// actor lacking the privilege fails with ErrPermissionDenied. Callers
// must distinguish the two to choose the right response code.
func Authorize(actor *domain.User, op Operation, isOwner bool) error {
	if actor == nil || actor.IsDeleted() || actor.Role == domain.RoleDeleted {
		return ErrUnauthenticated
	}

	perms, ok := rolePermissions[actor.Role]
	if !ok || !perms[op] {
		return fmt.Errorf("%w: role %s may not perform %s", ErrPermissionDenied, actor.Role, op)
	}

	if ownershipScoped[op] && !isOwner {
		return fmt.Errorf("%w: %s is limited to the actor's own records", ErrPermissionDenied, op)
	}

	return nil
}

// CanResolve is a convenience wrapper used by the lifecycle engine.
func CanResolve(actor *domain.User) error {
	return Authorize(actor, OpResolveReimbursement, false)
}
