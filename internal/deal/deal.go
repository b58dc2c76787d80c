// Package deal defines the deal entity, the owning resource for financial
// connections, statements and narratives.
package deal

import (
	"context"
	"time"
)

// Deal is an M&A engagement owned by one organization.
type Deal struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Directory resolves deals by identifier. Absence is reported as a
// taxonomy-coded not-found error.
type Directory interface {
	DealByID(ctx context.Context, id string) (Deal, error)
}
