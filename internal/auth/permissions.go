package auth

import (
	"context"
	"fmt"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
)

// Permission names a protected capability.
type Permission string

const (
	PermissionBillingView       Permission = "billing:view"
	PermissionBillingManage     Permission = "billing:manage"
	PermissionMasterImpersonate Permission = "master:impersonate"
)

// rolePermissions is the fixed permission matrix. master_admin is absent on
// purpose: the super-role bypasses the matrix entirely.
var rolePermissions = map[Permission]map[Role]struct{}{
	PermissionBillingView: {
		RoleSolo: {}, RoleGrowth: {}, RoleEnterprise: {}, RoleAdmin: {},
	},
	PermissionBillingManage: {
		RoleAdmin: {},
	},
	PermissionMasterImpersonate: {},
}

// RoleAllowed reports whether the role holds the permission.
func RoleAllowed(role Role, perm Permission) bool {
	if role == RoleMasterAdmin {
		return true
	}
	set, ok := rolePermissions[perm]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// Sink receives audit entries for denials. Satisfied by *audit.Recorder.
type Sink interface {
	Record(ctx context.Context, e audit.Entry)
}

// Engine evaluates the role-based permission path.
type Engine struct {
	sink Sink
}

// NewEngine constructs an Engine; sink may be nil in tests that do not
// observe denials.
func NewEngine(sink Sink) *Engine {
	return &Engine{sink: sink}
}

// Require returns nil when the user's role holds the permission. Denials are
// recorded synchronously before the error is returned.
func (e *Engine) Require(ctx context.Context, user User, perm Permission) error {
	if RoleAllowed(user.Role, perm) {
		return nil
	}
	if e.sink != nil {
		e.sink.Record(ctx, audit.Entry{
			Action:         audit.ActionPermissionDenied,
			ActorUserID:    user.ID,
			OrganizationID: user.OrganizationID,
			Detail:         fmt.Sprintf("role %s lacks %s", user.Role, perm),
		})
	}
	return apperr.Newf(apperr.KindPermissionDenied, "PERMISSION_DENIED", "permission %s denied", perm)
}
