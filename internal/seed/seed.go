// Package seed bootstraps a tenant: one organization and its admin user,
// upserted idempotently so deploys and test fixtures can run it on every
// start.
package seed

import (
	"context"
	"strings"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/identity"
	"mergerdesk.io/internal/obs"
)

// Tenant describes the organization and admin to ensure.
type Tenant struct {
	OrganizationID   string
	OrganizationName string
	OrganizationSlug string
	SubscriptionTier string

	AdminExternalSubject string
	AdminEmail           string
	AdminFirstName       string
	AdminLastName        string
	AdminRole            string
}

func (t Tenant) validate() error {
	switch {
	case strings.TrimSpace(t.OrganizationID) == "":
		return apperr.New(apperr.KindBadInput, "SEED_INVALID", "organization id is required")
	case strings.TrimSpace(t.OrganizationSlug) == "":
		return apperr.New(apperr.KindBadInput, "SEED_INVALID", "organization slug is required")
	case strings.TrimSpace(t.AdminExternalSubject) == "":
		return apperr.New(apperr.KindBadInput, "SEED_INVALID", "admin external subject is required")
	}
	if _, ok := auth.ParseRole(t.AdminRole); !ok {
		return apperr.Newf(apperr.KindBadInput, "SEED_INVALID", "unknown admin role %q", t.AdminRole)
	}
	return nil
}

// EnsureTenantAdmin upserts the organization by identifier, then the admin
// user by external subject. Natural names are updated when they differ;
// the identifier keys never change. An existing user keeps their current
// role; the configured role applies only on first creation.
func EnsureTenantAdmin(ctx context.Context, store identity.Store, t Tenant) (auth.User, error) {
	if err := t.validate(); err != nil {
		return auth.User{}, err
	}

	tier := strings.TrimSpace(t.SubscriptionTier)
	if tier == "" {
		tier = "solo"
	}
	org, err := store.UpsertOrganization(ctx, auth.Organization{
		ID:               strings.TrimSpace(t.OrganizationID),
		Name:             strings.TrimSpace(t.OrganizationName),
		Slug:             strings.TrimSpace(t.OrganizationSlug),
		SubscriptionTier: tier,
		Active:           true,
	})
	if err != nil {
		return auth.User{}, err
	}

	role, _ := auth.ParseRole(t.AdminRole)
	admin := auth.User{
		ExternalSubject: strings.TrimSpace(t.AdminExternalSubject),
		Email:           strings.TrimSpace(t.AdminEmail),
		FirstName:       strings.TrimSpace(t.AdminFirstName),
		LastName:        strings.TrimSpace(t.AdminLastName),
		Role:            role,
		Active:          true,
		OrganizationID:  org.ID,
	}

	existing, err := store.UserByExternalSubject(ctx, admin.ExternalSubject)
	switch {
	case err == nil:
		admin.ID = existing.ID
		admin.Role = existing.Role
		admin.LastLoginAt = existing.LastLoginAt
		admin.CreatedAt = existing.CreatedAt
	case !apperr.IsKind(err, apperr.KindNotFound):
		return auth.User{}, err
	}

	saved, err := store.UpsertUser(ctx, admin)
	if err != nil {
		return auth.User{}, err
	}
	obs.Log("tenant ensured", map[string]any{
		"organization_id": org.ID,
		"admin_subject":   saved.ExternalSubject,
		"created":         existing.ID == "",
	})
	return saved, nil
}
