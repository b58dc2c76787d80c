package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/ratio"
	"mergerdesk.io/internal/statement"
)

type pullRequest struct {
	ConnectionID  string `json:"connection_id"`
	StatementType string `json:"statement_type,omitempty"`
	PeriodEnd     string `json:"period_end"`
}

// pullStatements fetches statements from the connected platform. With a
// statement_type it pulls one report; without, the full period bundle.
func (a *API) pullStatements(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "BODY_MALFORMED", "request body is not valid JSON")
		return
	}
	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		badRequest(w, r, "PERIOD_END_INVALID", "period_end must be YYYY-MM-DD")
		return
	}

	conn, err := a.svc.Manager.Connection(r.Context(), req.ConnectionID)
	if err != nil || conn.DealID != d.ID {
		writeError(w, r, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found"))
		return
	}

	if req.StatementType != "" {
		typ, ok := statement.ParseType(req.StatementType)
		if !ok {
			badRequest(w, r, "STATEMENT_TYPE_UNKNOWN", "unsupported statement type")
			return
		}
		st, err := a.svc.Ingestor.Pull(r.Context(), conn.ID, typ, periodEnd)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}

	bundle, err := a.svc.Ingestor.PullPeriod(r.Context(), conn.ID, periodEnd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (a *API) listStatements(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	stmts, err := a.svc.Statements.StatementsByDeal(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stmts == nil {
		stmts = []statement.Statement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statements": stmts})
}

// computeRatios runs the ratio set over stored statements. The newest
// period is the current one; the period a year before, when stored, feeds
// the year-over-year ratios. ?period_end=YYYY-MM-DD overrides the period.
func (a *API) computeRatios(w http.ResponseWriter, r *http.Request, user auth.User) {
	d, ok := a.requireDeal(w, r, user)
	if !ok {
		return
	}
	stmts, err := a.svc.Statements.StatementsByDeal(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(stmts) == 0 {
		badRequest(w, r, "STATEMENTS_MISSING", "no statements have been pulled for this deal")
		return
	}

	byPeriod := map[time.Time]*statement.Bundle{}
	var periods []time.Time
	for i := range stmts {
		st := stmts[i]
		key := st.PeriodEnd.UTC()
		b := byPeriod[key]
		if b == nil {
			b = &statement.Bundle{}
			byPeriod[key] = b
			periods = append(periods, key)
		}
		switch st.Type {
		case statement.TypeBalanceSheet:
			b.BalanceSheet = &st
		case statement.TypeProfitLoss:
			b.ProfitLoss = &st
		case statement.TypeCashFlow:
			b.CashFlow = &st
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].After(periods[j]) })

	current := periods[0]
	if raw := r.URL.Query().Get("period_end"); raw != "" {
		p, err := time.Parse("2006-01-02", raw)
		if err != nil {
			badRequest(w, r, "PERIOD_END_INVALID", "period_end must be YYYY-MM-DD")
			return
		}
		if byPeriod[p.UTC()] == nil {
			badRequest(w, r, "STATEMENTS_MISSING", "no statements stored for that period")
			return
		}
		current = p.UTC()
	}

	var prior *statement.Bundle
	for _, p := range periods {
		if p.Before(current) {
			prior = byPeriod[p]
			break
		}
	}

	values := ratio.ComputeAll(statement.BuildInputs(*byPeriod[current], prior))
	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id":    d.ID,
		"period_end": current.Format("2006-01-02"),
		"ratios":     values,
	})
}
