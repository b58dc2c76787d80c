package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"mergerdesk.io/internal/identity"
	"mergerdesk.io/internal/obs"
)

// identityWebhook accepts signed provider deliveries. The signature is
// checked over the raw body before any parsing happens.
func (a *API) identityWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, r, "BODY_UNREADABLE", "could not read request body")
		return
	}

	sig := r.Header.Get(provider + "-signature")
	if err := identity.VerifySignature(a.svc.WebhookSecret, body, sig); err != nil {
		obs.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		writeError(w, r, err)
		return
	}

	var env identity.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		badRequest(w, r, "ENVELOPE_MALFORMED", "webhook envelope is not valid JSON")
		return
	}

	if err := a.svc.Ingester.Process(r.Context(), env); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
}
