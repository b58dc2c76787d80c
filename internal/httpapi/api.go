// Package httpapi is the HTTP surface: identity webhook, deal and
// connection management, statement pulls, ratios and narratives.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/deal"
	"mergerdesk.io/internal/finconn"
	"mergerdesk.io/internal/identity"
	"mergerdesk.io/internal/narrative"
	"mergerdesk.io/internal/obs"
	"mergerdesk.io/internal/statement"
)

// ReadyProbe reports readiness; with a DB it pings.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// DealStore is the deal persistence the API needs.
type DealStore interface {
	deal.Directory
	CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error)
	DealsByOrganization(ctx context.Context, organizationID string) ([]deal.Deal, error)
}

// AuditLog lists recorded audit entries for a tenant.
type AuditLog interface {
	AuditByOrganization(ctx context.Context, organizationID string, limit int) ([]audit.Entry, error)
}

// Services carries everything the API serves.
type Services struct {
	Verifier    *auth.Verifier
	Permissions *auth.Engine
	Gate        *auth.Gate

	Ingester      *identity.Ingester
	WebhookSecret string

	Manager  *finconn.Manager
	Ingestor *statement.Ingestor
	Ledger   *narrative.Ledger

	Deals         DealStore
	Statements    statement.Store
	Audit         AuditLog
	Organizations OrgDirectory

	Ready   ReadyProbe
	Version string
}

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux
	svc Services
}

// New wires the routes.
func New(svc Services) *API {
	a := &API{mux: http.NewServeMux(), svc: svc}

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /api/webhooks/{provider}", a.identityWebhook)
	a.mux.HandleFunc("GET /api/integrations/{platform}/callback", a.oauthCallback)

	a.mux.Handle("POST /api/deals", a.authed(a.createDeal))
	a.mux.Handle("GET /api/deals", a.authed(a.listDeals))
	a.mux.Handle("GET /api/deals/{id}", a.authed(a.getDeal))

	a.mux.Handle("POST /api/deals/{id}/connections/{platform}", a.authed(a.initiateOAuth))
	a.mux.Handle("POST /api/deals/{id}/connections/{connection_id}/refresh", a.authed(a.refreshConnection))
	a.mux.Handle("DELETE /api/deals/{id}/connections/{connection_id}", a.authed(a.disconnect))

	a.mux.Handle("POST /api/deals/{id}/statements/pull", a.authed(a.pullStatements))
	a.mux.Handle("GET /api/deals/{id}/statements", a.authed(a.listStatements))
	a.mux.Handle("GET /api/deals/{id}/ratios", a.authed(a.computeRatios))

	a.mux.Handle("POST /api/deals/{id}/narratives", a.authed(a.addNarrative))
	a.mux.Handle("GET /api/deals/{id}/narratives", a.authed(a.listNarratives))
	a.mux.Handle("GET /api/deals/{id}/narratives/current", a.authed(a.currentNarrative))

	a.mux.Handle("GET /api/billing", a.authed(a.getBilling))
	a.mux.Handle("PUT /api/billing", a.authed(a.updateBilling))

	a.mux.Handle("GET /api/audit", a.authed(a.listAudit))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler is the fully wrapped server handler.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 40, 20)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mergerdesk-api",
		"version": a.svc.Version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
