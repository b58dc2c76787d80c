package auth

import (
	"context"
	"testing"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
)

func TestRoleAllowedMatrix(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleSolo, PermissionBillingView, true},
		{RoleGrowth, PermissionBillingView, true},
		{RoleEnterprise, PermissionBillingView, true},
		{RoleAdmin, PermissionBillingView, true},
		{RoleMasterAdmin, PermissionBillingView, true},
		{RoleSolo, PermissionBillingManage, false},
		{RoleGrowth, PermissionBillingManage, false},
		{RoleEnterprise, PermissionBillingManage, false},
		{RoleAdmin, PermissionBillingManage, true},
		{RoleMasterAdmin, PermissionBillingManage, true},
		{RoleAdmin, PermissionMasterImpersonate, false},
		{RoleMasterAdmin, PermissionMasterImpersonate, true},
	}
	for _, tc := range cases {
		if got := RoleAllowed(tc.role, tc.perm); got != tc.want {
			t.Errorf("RoleAllowed(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestMasterBypassesUnknownPermission(t *testing.T) {
	if !RoleAllowed(RoleMasterAdmin, Permission("deals:purge")) {
		t.Fatalf("super-role must bypass every specific check")
	}
	if RoleAllowed(RoleAdmin, Permission("deals:purge")) {
		t.Fatalf("unknown permissions must deny non-master roles")
	}
}

func TestRequireRecordsDenial(t *testing.T) {
	mem := &audit.Memory{}
	engine := NewEngine(audit.NewRecorder(mem, audit.WithPublisher(func(context.Context, audit.Entry) error { return nil })))

	user := User{ID: "u1", Role: RoleGrowth, OrganizationID: "org-a", Active: true}
	err := engine.Require(context.Background(), user, PermissionBillingManage)
	if !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	entries := mem.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionPermissionDenied {
		t.Fatalf("unexpected action %s", e.Action)
	}
	if e.ActorUserID != "u1" || e.Detail == "" {
		t.Fatalf("entry must carry actor and non-empty detail: %+v", e)
	}
}

func TestRequireAllowedEmitsNothing(t *testing.T) {
	mem := &audit.Memory{}
	engine := NewEngine(audit.NewRecorder(mem, audit.WithPublisher(func(context.Context, audit.Entry) error { return nil })))

	user := User{ID: "u1", Role: RoleAdmin, OrganizationID: "org-a", Active: true}
	if err := engine.Require(context.Background(), user, PermissionBillingManage); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if len(mem.Entries()) != 0 {
		t.Fatalf("allowed checks must not be audited")
	}
}
