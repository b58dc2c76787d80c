// Package identity ingests signed webhook deliveries from the external
// identity provider and mirrors them into the internal principal state.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/obs"
)

// Envelope is the provider's webhook wire shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userEvent is the normalized subset of provider user payloads we consume.
type userEvent struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	ImageURL       string   `json:"image_url"`
	OrganizationID string   `json:"organization_id"`
	LastSignInAt   *int64   `json:"last_sign_in_at"`
	PublicMetadata metadata `json:"public_metadata"`
}

type metadata struct {
	Role string `json:"role"`
}

type sessionEvent struct {
	UserID string `json:"user_id"`
}

type orgEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Tier string `json:"subscription_tier"`
}

// Store is the persistence surface the ingester writes through. All writes
// are idempotent on the external subject / organization identifier.
type Store interface {
	UserByExternalSubject(ctx context.Context, subject string) (auth.User, error)
	UpsertUser(ctx context.Context, u auth.User) (auth.User, error)
	SoftDeleteUser(ctx context.Context, subject string) error
	TouchLastLogin(ctx context.Context, subject string, at time.Time) error
	UpsertOrganization(ctx context.Context, o auth.Organization) (auth.Organization, error)
}

// Ingester applies provider events to internal state.
type Ingester struct {
	store Store
	sink  auth.Sink
	now   func() time.Time
}

// NewIngester constructs an Ingester.
func NewIngester(store Store, sink auth.Sink) *Ingester {
	return &Ingester{store: store, sink: sink, now: time.Now}
}

// Process dispatches a verified envelope by event type. Unknown types are
// acknowledged and logged; the provider retries on non-2xx and we have
// nothing useful to do with them.
func (i *Ingester) Process(ctx context.Context, env Envelope) error {
	outcome := "ok"
	err := i.dispatch(ctx, env)
	if err != nil {
		outcome = "error"
	}
	obs.WebhookEventsTotal.WithLabelValues(env.Type, outcome).Inc()
	return err
}

func (i *Ingester) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case "user.created", "user.updated":
		return i.upsertUser(ctx, env.Data)
	case "user.deleted":
		return i.deleteUser(ctx, env.Data)
	case "session.created", "session.ended":
		return i.touchSession(ctx, env.Data)
	case "organization.created", "organization.updated":
		return i.upsertOrganization(ctx, env.Data)
	default:
		obs.Log("ignoring webhook event", map[string]any{"type": env.Type})
		return nil
	}
}

func (i *Ingester) upsertUser(ctx context.Context, data json.RawMessage) error {
	var ev userEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return apperr.Wrap(apperr.KindBadInput, "WEBHOOK_MALFORMED", "user payload malformed", err)
	}
	if strings.TrimSpace(ev.ID) == "" {
		return apperr.New(apperr.KindBadInput, "WEBHOOK_MALFORMED", "user id missing")
	}

	incoming := auth.User{
		ExternalSubject: ev.ID,
		Email:           strings.ToLower(strings.TrimSpace(ev.Email)),
		FirstName:       strings.TrimSpace(ev.FirstName),
		LastName:        strings.TrimSpace(ev.LastName),
		ImageURL:        ev.ImageURL,
		OrganizationID:  ev.OrganizationID,
		Active:          true,
		Role:            auth.RoleSolo,
	}
	if ev.LastSignInAt != nil {
		t := time.UnixMilli(*ev.LastSignInAt).UTC()
		incoming.LastLoginAt = &t
	}

	previous, err := i.store.UserByExternalSubject(ctx, ev.ID)
	known := err == nil
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return err
	}
	if known {
		// Merge-update: keep the established role unless the provider's
		// public metadata names a valid one.
		incoming.Role = previous.Role
		if previous.OrganizationID != "" && incoming.OrganizationID == "" {
			incoming.OrganizationID = previous.OrganizationID
		}
	}
	if role, ok := auth.ParseRole(ev.PublicMetadata.Role); ok {
		incoming.Role = role
	} else if ev.PublicMetadata.Role != "" {
		if i.sink != nil {
			i.sink.Record(ctx, audit.Entry{
				Action:         audit.ActionClaimMismatch,
				TargetUserID:   previous.ID,
				OrganizationID: incoming.OrganizationID,
				Detail:         fmt.Sprintf("unknown role claim %q for subject %s", ev.PublicMetadata.Role, ev.ID),
				Claims:         map[string]any{"role": ev.PublicMetadata.Role},
			})
		}
	}

	saved, err := i.store.UpsertUser(ctx, incoming)
	if err != nil {
		return err
	}
	if known && previous.Role != saved.Role && i.sink != nil {
		i.sink.Record(ctx, audit.Entry{
			Action:         audit.ActionRoleChange,
			TargetUserID:   saved.ID,
			OrganizationID: saved.OrganizationID,
			Detail:         fmt.Sprintf("role changed %s -> %s", previous.Role, saved.Role),
		})
	}
	return nil
}

func (i *Ingester) deleteUser(ctx context.Context, data json.RawMessage) error {
	var ev userEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return apperr.Wrap(apperr.KindBadInput, "WEBHOOK_MALFORMED", "user payload malformed", err)
	}
	if strings.TrimSpace(ev.ID) == "" {
		return apperr.New(apperr.KindBadInput, "WEBHOOK_MALFORMED", "user id missing")
	}
	existing, err := i.store.UserByExternalSubject(ctx, ev.ID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil // deletion of an unknown subject is a no-op
		}
		return err
	}
	if err := i.store.SoftDeleteUser(ctx, ev.ID); err != nil {
		return err
	}
	if i.sink != nil {
		i.sink.Record(ctx, audit.Entry{
			Action:         audit.ActionUserDeleted,
			TargetUserID:   existing.ID,
			OrganizationID: existing.OrganizationID,
			Detail:         fmt.Sprintf("provider deleted subject %s", ev.ID),
		})
	}
	return nil
}

func (i *Ingester) touchSession(ctx context.Context, data json.RawMessage) error {
	var ev sessionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return apperr.Wrap(apperr.KindBadInput, "WEBHOOK_MALFORMED", "session payload malformed", err)
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return apperr.New(apperr.KindBadInput, "WEBHOOK_MALFORMED", "session user id missing")
	}
	err := i.store.TouchLastLogin(ctx, ev.UserID, i.now().UTC())
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil // session for a user we have not ingested yet
	}
	return err
}

func (i *Ingester) upsertOrganization(ctx context.Context, data json.RawMessage) error {
	var ev orgEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return apperr.Wrap(apperr.KindBadInput, "WEBHOOK_MALFORMED", "organization payload malformed", err)
	}
	if strings.TrimSpace(ev.ID) == "" {
		return apperr.New(apperr.KindBadInput, "WEBHOOK_MALFORMED", "organization id missing")
	}
	tier := ev.Tier
	if tier == "" {
		tier = "solo"
	}
	_, err := i.store.UpsertOrganization(ctx, auth.Organization{
		ID:               ev.ID,
		Name:             strings.TrimSpace(ev.Name),
		Slug:             strings.TrimSpace(ev.Slug),
		SubscriptionTier: tier,
		Active:           true,
	})
	return err
}
