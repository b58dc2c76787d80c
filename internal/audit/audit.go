// Package audit provides the append-only RBAC audit sink.
//
// Entries are written to the primary relational store and mirrored through a
// pluggable secondary publisher. The sink is best effort: it never fails the
// request it describes and never blocks longer than the publisher timeout.
package audit

import (
	"context"
	"time"

	"mergerdesk.io/internal/ids"
	"mergerdesk.io/internal/obs"
)

// Action enumerates authorization-relevant events.
type Action string

const (
	ActionRoleChange             Action = "role-change"
	ActionUserDeleted            Action = "user-deleted"
	ActionUserRestored           Action = "user-restored"
	ActionClaimMismatch          Action = "claim-mismatch"
	ActionPermissionDenied       Action = "permission-denied"
	ActionImpersonation          Action = "impersonation"
	ActionResourceScopeViolation Action = "resource-scope-violation"
)

// Entry is a single append-only audit record. Actor and target are optional;
// anonymous denials carry neither.
type Entry struct {
	ID             string         `json:"id"`
	Action         Action         `json:"action"`
	ActorUserID    string         `json:"actor_user_id,omitempty"`
	TargetUserID   string         `json:"target_user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Detail         string         `json:"detail"`
	Claims         map[string]any `json:"claims,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store is the primary sink: a relational table append.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
}

// Publisher is the secondary sink invoked after the primary append.
type Publisher func(ctx context.Context, e Entry) error

// Recorder fans an entry out to the primary store and the publisher.
type Recorder struct {
	store   Store
	publish Publisher
	timeout time.Duration
	now     func() time.Time
}

// Option configures Recorder.
type Option func(*Recorder)

// WithPublisher overrides the secondary sink.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		if p != nil {
			r.publish = p
		}
	}
}

// WithTimeout bounds the secondary publish.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder. The default secondary sink is a
// structured log line.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		publish: LogPublisher(),
		timeout: 2 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the entry. Failures are logged, never raised: denied
// operations must not fail twice because their log entry could not be written.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if r.store != nil {
		if err := r.store.AppendAudit(ctx, e); err != nil {
			obs.LogError("audit append failed", err, map[string]any{
				"action": string(e.Action),
				"id":     e.ID,
			})
		}
	}
	if r.publish == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.publish(pubCtx, e); err != nil {
		obs.AuditPublishFailures.Inc()
		obs.LogError("audit publish failed", err, map[string]any{
			"action": string(e.Action),
			"id":     e.ID,
		})
	}
}
