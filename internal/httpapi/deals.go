package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/deal"
	"mergerdesk.io/internal/ids"
)

type createDealRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (a *API) createDeal(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "BODY_MALFORMED", "request body is not valid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		badRequest(w, r, "DEAL_NAME_EMPTY", "deal name is required")
		return
	}
	if req.Status == "" {
		req.Status = "active"
	}
	now := time.Now().UTC()
	d, err := a.svc.Deals.CreateDeal(r.Context(), deal.Deal{
		ID:             ids.NewEntity(),
		OrganizationID: user.OrganizationID,
		Name:           req.Name,
		Status:         req.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) listDeals(w http.ResponseWriter, r *http.Request, user auth.User) {
	deals, err := a.svc.Deals.DealsByOrganization(r.Context(), user.OrganizationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if deals == nil {
		deals = []deal.Deal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func (a *API) getDeal(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, err := a.svc.Gate.RequireDeal(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// requireDeal scopes a request to a deal the caller may see. Out-of-tenant
// deals report the same not-found as missing ones.
func (a *API) requireDeal(w http.ResponseWriter, r *http.Request, user auth.User) (deal.Deal, bool) {
	d, err := a.svc.Gate.RequireDeal(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return deal.Deal{}, false
	}
	return d, true
}
