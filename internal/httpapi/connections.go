package httpapi

import (
	"net/http"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/finconn"
)

func (a *API) initiateOAuth(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	platform, ok := finconn.ParsePlatform(r.PathValue("platform"))
	if !ok {
		badRequest(w, r, "PLATFORM_UNKNOWN", "unsupported accounting platform")
		return
	}
	authorizeURL, err := a.svc.Manager.InitiateOAuth(r.Context(), user, d, platform)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorize_url": authorizeURL})
}

// oauthCallback is unauthenticated; the single-use state ticket binds the
// redirect back to the initiating deal and user.
func (a *API) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		badRequest(w, r, "OAUTH_CALLBACK_INCOMPLETE", "state and code are required")
		return
	}
	conn, err := a.svc.Manager.HandleCallback(r.Context(), state, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// dealConnection resolves a connection path parameter inside an already
// scoped deal. A connection belonging to another deal reads as absent.
func (a *API) dealConnection(w http.ResponseWriter, r *http.Request, user auth.User) (finconn.Connection, bool) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return finconn.Connection{}, false
	}
	conn, err := a.svc.Manager.Connection(r.Context(), r.PathValue("connection_id"))
	if err != nil {
		writeError(w, r, err)
		return finconn.Connection{}, false
	}
	if conn.DealID != d.ID {
		writeError(w, r, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found"))
		return finconn.Connection{}, false
	}
	return conn, true
}

func (a *API) refreshConnection(w http.ResponseWriter, r *http.Request, user auth.User) {
	conn, ok := a.dealConnection(w, r, user)
	if !ok {
		return
	}
	refreshed, err := a.svc.Manager.Refresh(r.Context(), conn.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshed)
}

func (a *API) disconnect(w http.ResponseWriter, r *http.Request, user auth.User) {
	conn, ok := a.dealConnection(w, r, user)
	if !ok {
		return
	}
	if err := a.svc.Manager.Disconnect(r.Context(), conn.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
