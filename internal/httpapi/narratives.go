package httpapi

import (
	"encoding/json"
	"net/http"

	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/narrative"
)

type narrativeRequest struct {
	Content       string `json:"content"`
	Summary       string `json:"summary,omitempty"`
	ModelTag      string `json:"model_tag,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	TokenCount    int    `json:"token_count,omitempty"`
	GenerationMS  int64  `json:"generation_ms,omitempty"`

	ReadinessScore   *float64 `json:"readiness_score,omitempty"`
	FinancialScore   *float64 `json:"financial_score,omitempty"`
	OperationalScore *float64 `json:"operational_score,omitempty"`
	GrowthScore      *float64 `json:"growth_score,omitempty"`
	RiskScore        *float64 `json:"risk_score,omitempty"`
}

func (a *API) addNarrative(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	var req narrativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "BODY_MALFORMED", "request body is not valid JSON")
		return
	}
	n, err := a.svc.Ledger.Add(r.Context(), d.ID, d.OrganizationID, user.ID, narrative.Payload{
		Content:          req.Content,
		Summary:          req.Summary,
		ModelTag:         req.ModelTag,
		PromptVersion:    req.PromptVersion,
		TokenCount:       req.TokenCount,
		GenerationMS:     req.GenerationMS,
		ReadinessScore:   req.ReadinessScore,
		FinancialScore:   req.FinancialScore,
		OperationalScore: req.OperationalScore,
		GrowthScore:      req.GrowthScore,
		RiskScore:        req.RiskScore,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *API) listNarratives(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	history, err := a.svc.Ledger.History(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []narrative.Narrative{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"narratives": history})
}

func (a *API) currentNarrative(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	n, err := a.svc.Ledger.Current(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
