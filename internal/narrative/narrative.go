// Package narrative keeps the append-only ledger of generated deal
// narratives. Versions are immutable once committed; each new narrative
// supersedes the previous head for its deal.
package narrative

import (
	"context"
	"strings"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/ids"
)

// Narrative is one committed version.
type Narrative struct {
	ID             string  `json:"id"`
	DealID         string  `json:"deal_id"`
	OrganizationID string  `json:"organization_id"`
	Version        int     `json:"version"`
	SupersedesID   *string `json:"supersedes_id,omitempty"`
	Content        string  `json:"content"`
	Summary        string  `json:"summary,omitempty"`

	ModelTag      string `json:"model_tag,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	TokenCount    int    `json:"token_count,omitempty"`
	GenerationMS  int64  `json:"generation_ms,omitempty"`

	ReadinessScore   *float64 `json:"readiness_score,omitempty"`
	FinancialScore   *float64 `json:"financial_score,omitempty"`
	OperationalScore *float64 `json:"operational_score,omitempty"`
	GrowthScore      *float64 `json:"growth_score,omitempty"`
	RiskScore        *float64 `json:"risk_score,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload is what a caller submits; versioning fields are assigned by the
// ledger.
type Payload struct {
	Content       string
	Summary       string
	ModelTag      string
	PromptVersion string
	TokenCount    int
	GenerationMS  int64

	ReadinessScore   *float64
	FinancialScore   *float64
	OperationalScore *float64
	GrowthScore      *float64
	RiskScore        *float64
}

// Store persists narratives. AppendUnderDealLock must hold the deal row
// lock while fn runs so concurrent appends serialize and the version
// counter stays monotonic; fn receives the current head, nil when the deal
// has none yet, and the returned narrative is inserted before the lock is
// released.
type Store interface {
	AppendUnderDealLock(ctx context.Context, dealID string, fn func(ctx context.Context, head *Narrative) (Narrative, error)) (Narrative, error)
	NarrativeByID(ctx context.Context, dealID, id string) (Narrative, error)
	Head(ctx context.Context, dealID string) (Narrative, error)
	VersionsByDeal(ctx context.Context, dealID string) ([]Narrative, error)
}

// Ledger is the append-only service over a Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add commits a new narrative version for the deal. The version counter
// increments from the head and supersedes_id points at it; the first
// version for a deal is 1 with no predecessor.
func (l *Ledger) Add(ctx context.Context, dealID, organizationID, createdBy string, p Payload) (Narrative, error) {
	if strings.TrimSpace(p.Content) == "" {
		return Narrative{}, apperr.New(apperr.KindBadInput, "NARRATIVE_EMPTY", "narrative content is required")
	}
	return l.store.AppendUnderDealLock(ctx, dealID, func(_ context.Context, head *Narrative) (Narrative, error) {
		n := Narrative{
			ID:             ids.NewEntity(),
			DealID:         dealID,
			OrganizationID: organizationID,
			Version:        1,
			Content:        p.Content,
			Summary:        p.Summary,
			ModelTag:       p.ModelTag,
			PromptVersion:  p.PromptVersion,
			TokenCount:     p.TokenCount,
			GenerationMS:   p.GenerationMS,

			ReadinessScore:   p.ReadinessScore,
			FinancialScore:   p.FinancialScore,
			OperationalScore: p.OperationalScore,
			GrowthScore:      p.GrowthScore,
			RiskScore:        p.RiskScore,

			CreatedBy: createdBy,
			CreatedAt: l.now().UTC(),
		}
		if head != nil {
			n.Version = head.Version + 1
			id := head.ID
			n.SupersedesID = &id
		}
		return n, nil
	})
}

// Current returns the head narrative for a deal.
func (l *Ledger) Current(ctx context.Context, dealID string) (Narrative, error) {
	return l.store.Head(ctx, dealID)
}

// History returns every version for a deal, newest first.
func (l *Ledger) History(ctx context.Context, dealID string) ([]Narrative, error) {
	return l.store.VersionsByDeal(ctx, dealID)
}

// Chain walks the supersession chain from the given version back to the
// first, returning the versions in walk order.
func (l *Ledger) Chain(ctx context.Context, dealID, fromID string) ([]Narrative, error) {
	var out []Narrative
	id := fromID
	for id != "" {
		n, err := l.store.NarrativeByID(ctx, dealID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if n.SupersedesID == nil {
			break
		}
		id = *n.SupersedesID
	}
	return out, nil
}
