package pg

import (
	"context"
	"database/sql"
	"errors"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/narrative"
)

const narrativeColumns = `id, deal_id, organization_id, version, supersedes_id,
	content, summary, model_tag, prompt_version, token_count, generation_ms,
	readiness_score, financial_score, operational_score, growth_score, risk_score,
	created_by, created_at`

type narrativeRow interface {
	Scan(dest ...any) error
}

func scanNarrative(row narrativeRow) (narrative.Narrative, error) {
	var n narrative.Narrative
	var supersedes sql.NullString
	err := row.Scan(&n.ID, &n.DealID, &n.OrganizationID, &n.Version, &supersedes,
		&n.Content, &n.Summary, &n.ModelTag, &n.PromptVersion, &n.TokenCount, &n.GenerationMS,
		&n.ReadinessScore, &n.FinancialScore, &n.OperationalScore, &n.GrowthScore, &n.RiskScore,
		&n.CreatedBy, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return narrative.Narrative{}, apperr.New(apperr.KindNotFound, "NARRATIVE_NOT_FOUND", "narrative not found")
	}
	if err != nil {
		return narrative.Narrative{}, err
	}
	if supersedes.Valid {
		v := supersedes.String
		n.SupersedesID = &v
	}
	return n, nil
}

// AppendUnderDealLock locks the deal row, hands fn the current head, and
// inserts the narrative fn returns. The lock makes the per-deal version
// counter safe under concurrent generation.
func (s *Store) AppendUnderDealLock(ctx context.Context, dealID string, fn func(ctx context.Context, head *narrative.Narrative) (narrative.Narrative, error)) (narrative.Narrative, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return narrative.Narrative{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx, `select id from deals where id = $1 for update`, dealID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return narrative.Narrative{}, apperr.New(apperr.KindNotFound, "DEAL_NOT_FOUND", "deal not found")
	}
	if err != nil {
		return narrative.Narrative{}, err
	}

	var head *narrative.Narrative
	h, err := scanNarrative(tx.QueryRowContext(ctx, `
		select `+narrativeColumns+` from deal_narratives
		where deal_id = $1 order by version desc limit 1
	`, dealID))
	switch {
	case err == nil:
		head = &h
	case !apperr.IsKind(err, apperr.KindNotFound):
		return narrative.Narrative{}, err
	}

	n, err := fn(ctx, head)
	if err != nil {
		return narrative.Narrative{}, err
	}

	var supersedes sql.NullString
	if n.SupersedesID != nil {
		supersedes = sql.NullString{String: *n.SupersedesID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		insert into deal_narratives
			(id, deal_id, organization_id, version, supersedes_id,
			 content, summary, model_tag, prompt_version, token_count, generation_ms,
			 readiness_score, financial_score, operational_score, growth_score, risk_score,
			 created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, n.ID, n.DealID, n.OrganizationID, n.Version, supersedes,
		n.Content, n.Summary, n.ModelTag, n.PromptVersion, n.TokenCount, n.GenerationMS,
		n.ReadinessScore, n.FinancialScore, n.OperationalScore, n.GrowthScore, n.RiskScore,
		n.CreatedBy, n.CreatedAt); err != nil {
		return narrative.Narrative{}, uniqueViolation(err, "NARRATIVE_VERSION_CONFLICT", "narrative version already committed")
	}
	if err := tx.Commit(); err != nil {
		return narrative.Narrative{}, err
	}
	return n, nil
}

func (s *Store) NarrativeByID(ctx context.Context, dealID, id string) (narrative.Narrative, error) {
	return scanNarrative(s.db.QueryRowContext(ctx, `
		select `+narrativeColumns+` from deal_narratives
		where deal_id = $1 and id = $2
	`, dealID, id))
}

func (s *Store) Head(ctx context.Context, dealID string) (narrative.Narrative, error) {
	return scanNarrative(s.db.QueryRowContext(ctx, `
		select `+narrativeColumns+` from deal_narratives
		where deal_id = $1 order by version desc limit 1
	`, dealID))
}

func (s *Store) VersionsByDeal(ctx context.Context, dealID string) ([]narrative.Narrative, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+narrativeColumns+` from deal_narratives
		where deal_id = $1 order by version desc
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []narrative.Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
