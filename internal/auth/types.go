package auth

import (
	"strings"
	"time"
)

// Role is the closed set of subscription and administration roles.
type Role string

const (
	RoleSolo        Role = "solo"
	RoleGrowth      Role = "growth"
	RoleEnterprise  Role = "enterprise"
	RoleAdmin       Role = "admin"
	RoleMasterAdmin Role = "master_admin"
)

// ParseRole normalizes a role string. Unknown values report ok=false.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleSolo:
		return RoleSolo, true
	case RoleGrowth:
		return RoleGrowth, true
	case RoleEnterprise:
		return RoleEnterprise, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMasterAdmin:
		return RoleMasterAdmin, true
	}
	return "", false
}

// Organization is a tenant. Identifiers are immutable 36-character strings;
// organizations are tombstoned with Active=false, never hard-deleted.
type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	SubscriptionTier string    `json:"subscription_tier"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// User is an internal principal. ExternalSubject is the identity provider's
// stable subject and is unique. OrganizationID is empty only for master_admin.
type User struct {
	ID              string     `json:"id"`
	ExternalSubject string     `json:"external_subject"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	ImageURL        string     `json:"image_url,omitempty"`
	Role            Role       `json:"role"`
	Active          bool       `json:"active"`
	OrganizationID  string     `json:"organization_id,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsMaster reports whether the user carries the super-role.
func (u User) IsMaster() bool { return u.Role == RoleMasterAdmin }
