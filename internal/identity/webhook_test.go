package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/auth"
)

type fakeStore struct {
	users map[string]auth.User
	orgs  map[string]auth.Organization
	seq   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]auth.User{}, orgs: map[string]auth.Organization{}}
}

func (f *fakeStore) UserByExternalSubject(_ context.Context, subject string) (auth.User, error) {
	u, ok := f.users[subject]
	if !ok {
		return auth.User{}, apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	return u, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, u auth.User) (auth.User, error) {
	if existing, ok := f.users[u.ExternalSubject]; ok {
		u.ID = existing.ID
	} else {
		f.seq++
		u.ID = fmt.Sprintf("user-%d", f.seq)
	}
	f.users[u.ExternalSubject] = u
	return u, nil
}

func (f *fakeStore) SoftDeleteUser(_ context.Context, subject string) error {
	u, ok := f.users[subject]
	if !ok {
		return apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	u.Active = false
	f.users[subject] = u
	return nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, subject string, at time.Time) error {
	u, ok := f.users[subject]
	if !ok {
		return apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	u.LastLoginAt = &at
	f.users[subject] = u
	return nil
}

func (f *fakeStore) UpsertOrganization(_ context.Context, o auth.Organization) (auth.Organization, error) {
	f.orgs[o.ID] = o
	return o, nil
}

func newIngestFixture() (*Ingester, *fakeStore, *audit.Memory) {
	store := newFakeStore()
	mem := &audit.Memory{}
	rec := audit.NewRecorder(mem, audit.WithPublisher(func(context.Context, audit.Entry) error { return nil }))
	return NewIngester(store, rec), store, mem
}

func envelope(t *testing.T, typ string, data any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	return Envelope{Type: typ, Data: raw}
}

func TestUserCreatedIsIdempotent(t *testing.T) {
	ing, store, _ := newIngestFixture()
	env := envelope(t, "user.created", map[string]any{
		"id": "sub-1", "email": "Jo@Example.com", "first_name": "Jo", "last_name": "Birch",
		"organization_id": "org-a",
	})

	for range 2 {
		if err := ing.Process(context.Background(), env); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if len(store.users) != 1 {
		t.Fatalf("expected exactly one user row, got %d", len(store.users))
	}
	u := store.users["sub-1"]
	if u.Email != "jo@example.com" {
		t.Fatalf("email not normalized: %s", u.Email)
	}
	if !u.Active || u.Role != auth.RoleSolo {
		t.Fatalf("unexpected defaults: %+v", u)
	}
}

func TestUserUpdatedRoleChangeIsAudited(t *testing.T) {
	ing, store, mem := newIngestFixture()
	created := envelope(t, "user.created", map[string]any{
		"id": "sub-1", "email": "jo@example.com", "organization_id": "org-a",
	})
	if err := ing.Process(context.Background(), created); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated := envelope(t, "user.updated", map[string]any{
		"id": "sub-1", "email": "jo@example.com",
		"public_metadata": map[string]any{"role": "admin"},
	})
	if err := ing.Process(context.Background(), updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	if store.users["sub-1"].Role != auth.RoleAdmin {
		t.Fatalf("role not applied: %s", store.users["sub-1"].Role)
	}
	if store.users["sub-1"].OrganizationID != "org-a" {
		t.Fatalf("merge-update must keep the organization")
	}
	entries := mem.Entries()
	if len(entries) != 1 || entries[0].Action != audit.ActionRoleChange {
		t.Fatalf("expected one role-change entry, got %+v", entries)
	}
}

func TestUnknownRoleClaimRecordsMismatch(t *testing.T) {
	ing, store, mem := newIngestFixture()
	env := envelope(t, "user.created", map[string]any{
		"id": "sub-1", "email": "jo@example.com",
		"public_metadata": map[string]any{"role": "emperor"},
	})
	if err := ing.Process(context.Background(), env); err != nil {
		t.Fatalf("process: %v", err)
	}
	if store.users["sub-1"].Role != auth.RoleSolo {
		t.Fatalf("unknown role must not be applied")
	}
	entries := mem.Entries()
	if len(entries) != 1 || entries[0].Action != audit.ActionClaimMismatch {
		t.Fatalf("expected claim-mismatch entry, got %+v", entries)
	}
	if entries[0].Claims["role"] != "emperor" {
		t.Fatalf("claim snapshot missing")
	}
}

func TestUserDeletedSoftDeletesAndAudits(t *testing.T) {
	ing, store, mem := newIngestFixture()
	if err := ing.Process(context.Background(), envelope(t, "user.created", map[string]any{"id": "sub-1", "email": "jo@example.com"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ing.Process(context.Background(), envelope(t, "user.deleted", map[string]any{"id": "sub-1"})); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if store.users["sub-1"].Active {
		t.Fatalf("expected soft delete")
	}
	var deletions int
	for _, e := range mem.Entries() {
		if e.Action == audit.ActionUserDeleted {
			deletions++
		}
	}
	if deletions != 1 {
		t.Fatalf("expected one user-deleted entry, got %d", deletions)
	}

	// Deleting an unknown subject is acknowledged silently.
	if err := ing.Process(context.Background(), envelope(t, "user.deleted", map[string]any{"id": "sub-ghost"})); err != nil {
		t.Fatalf("unknown delete should be a no-op: %v", err)
	}
}

func TestSessionEventsTouchLastLoginOnly(t *testing.T) {
	ing, store, _ := newIngestFixture()
	if err := ing.Process(context.Background(), envelope(t, "user.created", map[string]any{"id": "sub-1", "email": "jo@example.com"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := store.users["sub-1"]

	if err := ing.Process(context.Background(), envelope(t, "session.created", map[string]any{"user_id": "sub-1"})); err != nil {
		t.Fatalf("session: %v", err)
	}
	after := store.users["sub-1"]
	if after.LastLoginAt == nil {
		t.Fatalf("last login not set")
	}
	if after.Email != before.Email || after.Role != before.Role {
		t.Fatalf("session events must not mutate other fields")
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_shared"
	body := []byte(`{"type":"user.created","data":{"id":"sub-1"}}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(secret, body, sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// One-bit flip in the body.
	flipped := append([]byte(nil), body...)
	flipped[0] ^= 0x01
	if err := VerifySignature(secret, flipped, sig); !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("flipped body must be rejected, got %v", err)
	}

	// One-bit flip in the signature.
	badSig := []byte(sig)
	if badSig[0] == 'a' {
		badSig[0] = 'b'
	} else {
		badSig[0] = 'a'
	}
	if err := VerifySignature(secret, body, string(badSig)); !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("flipped signature must be rejected, got %v", err)
	}

	if err := VerifySignature("", body, sig); !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("unset secret must reject, got %v", err)
	}
	if err := VerifySignature(secret, body, ""); !apperr.IsKind(err, apperr.KindInvalidSignature) {
		t.Fatalf("missing header must reject, got %v", err)
	}
}
