package httpapi

import (
	"net/http"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/obs"
)

// writeError maps taxonomy errors onto the response envelope. Internal
// errors are logged but never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	message := apperr.MessageOf(err)
	if status >= http.StatusInternalServerError {
		obs.LogError("request failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		code = "INTERNAL"
		message = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"detail": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, code, message string) {
	writeError(w, r, apperr.New(apperr.KindBadInput, code, message))
}
