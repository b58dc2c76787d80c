package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mergerdesk.io/internal/auth"
)

// OrgDirectory resolves organizations for the billing surface.
type OrgDirectory interface {
	OrganizationByID(ctx context.Context, id string) (auth.Organization, error)
	UpsertOrganization(ctx context.Context, o auth.Organization) (auth.Organization, error)
}

// getBilling shows the tenant's subscription. Gated on the billing:view
// permission, which every subscription role holds.
func (a *API) getBilling(w http.ResponseWriter, r *http.Request, user auth.User) {
	if err := a.svc.Permissions.Require(r.Context(), user, auth.PermissionBillingView); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := a.svc.Organizations.OrganizationByID(r.Context(), user.OrganizationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id":   org.ID,
		"subscription_tier": org.SubscriptionTier,
	})
}

type billingUpdateRequest struct {
	SubscriptionTier string `json:"subscription_tier"`
}

// updateBilling changes the tenant's subscription tier. Admin only via
// billing:manage; the payment provider adapter is driven elsewhere.
func (a *API) updateBilling(w http.ResponseWriter, r *http.Request, user auth.User) {
	if err := a.svc.Permissions.Require(r.Context(), user, auth.PermissionBillingManage); err != nil {
		writeError(w, r, err)
		return
	}
	var req billingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "BODY_MALFORMED", "request body is not valid JSON")
		return
	}
	tier := strings.TrimSpace(strings.ToLower(req.SubscriptionTier))
	switch tier {
	case "solo", "growth", "enterprise":
	default:
		badRequest(w, r, "TIER_UNKNOWN", "subscription_tier must be solo, growth or enterprise")
		return
	}
	org, err := a.svc.Organizations.OrganizationByID(r.Context(), user.OrganizationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	org.SubscriptionTier = tier
	saved, err := a.svc.Organizations.UpsertOrganization(r.Context(), org)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id":   saved.ID,
		"subscription_tier": saved.SubscriptionTier,
	})
}
