package httpapi

import (
	"net/http"
	"strconv"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/auth"
)

// listAudit returns the tenant's audit trail. Admin roles only; a master
// admin may read any tenant with ?organization_id=.
func (a *API) listAudit(w http.ResponseWriter, r *http.Request, user auth.User) {
	if user.Role != auth.RoleAdmin && !user.IsMaster() {
		writeError(w, r, apperr.New(apperr.KindPermissionDenied, "AUDIT_FORBIDDEN", "audit log requires an admin role"))
		return
	}
	orgID := user.OrganizationID
	if user.IsMaster() {
		if q := r.URL.Query().Get("organization_id"); q != "" {
			orgID = q
		}
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, r, "LIMIT_INVALID", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := a.svc.Audit.AuditByOrganization(r.Context(), orgID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
