package auth

import (
	"context"
	"fmt"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/deal"
)

// Gate evaluates the resource-scope path: a principal may touch a resource
// only when it belongs to the principal's organization. Absence and
// cross-tenant access are indistinguishable to the caller; both yield the
// same taxonomy-coded not-found error so tenants cannot be enumerated.
type Gate struct {
	deals deal.Directory
	sink  Sink
}

// NewGate constructs a Gate.
func NewGate(deals deal.Directory, sink Sink) *Gate {
	return &Gate{deals: deals, sink: sink}
}

func dealNotFound() error {
	return apperr.New(apperr.KindNotFound, "DEAL_NOT_FOUND", "deal not found")
}

// RequireDeal returns the deal when the principal may access it.
func (g *Gate) RequireDeal(ctx context.Context, user User, dealID string) (deal.Deal, error) {
	d, err := g.deals.DealByID(ctx, dealID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return deal.Deal{}, dealNotFound()
		}
		return deal.Deal{}, err
	}
	if user.IsMaster() {
		return d, nil
	}
	if d.OrganizationID != user.OrganizationID {
		if g.sink != nil {
			g.sink.Record(ctx, audit.Entry{
				Action:         audit.ActionResourceScopeViolation,
				ActorUserID:    user.ID,
				OrganizationID: user.OrganizationID,
				Detail:         fmt.Sprintf("deal %s belongs to another organization", dealID),
			})
		}
		return deal.Deal{}, dealNotFound()
	}
	return d, nil
}
