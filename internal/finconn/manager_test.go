package finconn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/deal"
)

// memStore is an in-memory Store used by manager tests. The lock method
// mirrors the row-lock contract with a per-connection mutex.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	conns   map[string]Connection
	locks   map[string]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		tickets: map[string]Ticket{},
		conns:   map[string]Connection{},
		locks:   map[string]*sync.Mutex{},
	}
}

func (s *memStore) SaveTicket(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.State] = t
	return nil
}

func (s *memStore) TicketByState(_ context.Context, state string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[state]
	if !ok {
		return Ticket{}, apperr.New(apperr.KindNotFound, "OAUTH_STATE_INVALID", "ticket not found")
	}
	return t, nil
}

func (s *memStore) RedeemTicket(_ context.Context, state, connectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[state]
	if !ok {
		return apperr.New(apperr.KindNotFound, "OAUTH_STATE_INVALID", "ticket not found")
	}
	t.RedeemedAt = &at
	t.ConnectionID = connectionID
	s.tickets[state] = t
	return nil
}

func (s *memStore) InsertConnection(_ context.Context, c Connection) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.ID] = c
	s.locks[c.ID] = &sync.Mutex{}
	return c, nil
}

func (s *memStore) GetConnection(_ context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return Connection{}, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found")
	}
	return c, nil
}

func (s *memStore) ActiveConnection(_ context.Context, dealID string, platform Platform) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.DealID == dealID && c.Platform == platform && c.Status == StatusActive {
			return c, nil
		}
	}
	return Connection{}, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "no active connection")
}

func (s *memStore) UpdateConnection(_ context.Context, c Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.ID]; !ok {
		return apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found")
	}
	s.conns[c.ID] = c
	return nil
}

func (s *memStore) WithConnectionLock(ctx context.Context, id string, fn func(context.Context, Connection) (Connection, error)) (Connection, error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return Connection{}, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found")
	}
	lock.Lock()
	defer lock.Unlock()
	c, err := s.GetConnection(ctx, id)
	if err != nil {
		return Connection{}, err
	}
	updated, err := fn(ctx, c)
	if err != nil {
		return Connection{}, err
	}
	if uerr := s.UpdateConnection(ctx, updated); uerr != nil {
		return Connection{}, uerr
	}
	return updated, nil
}

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("key: %v", err)
	}
	s, err := NewSealer(hex.EncodeToString(key))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	return s
}

type fixture struct {
	manager *Manager
	store   *memStore
	driver  *MockDriver
	sealer  *Sealer
	user    auth.User
	deal    deal.Deal
}

func newFixture(t *testing.T, opts ...ManagerOption) *fixture {
	t.Helper()
	store := newMemStore()
	driver := NewMockDriver(PlatformXero)
	sealer := testSealer(t)
	mgr := NewManager(store, Registry{PlatformXero: driver}, sealer, opts...)
	return &fixture{
		manager: mgr,
		store:   store,
		driver:  driver,
		sealer:  sealer,
		user:    auth.User{ID: "u1", Role: auth.RoleAdmin, OrganizationID: "org-a", Active: true},
		deal:    deal.Deal{ID: "deal-x", OrganizationID: "org-a"},
	}
}

func (f *fixture) connect(t *testing.T) Connection {
	t.Helper()
	ctx := context.Background()
	url, err := f.manager.InitiateOAuth(ctx, f.user, f.deal, PlatformXero)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromURL(t, url)
	conn, err := f.manager.HandleCallback(ctx, state, "grant-code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	return conn
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	const marker = "state="
	idx := -1
	for i := 0; i+len(marker) <= len(raw); i++ {
		if raw[i:i+len(marker)] == marker {
			idx = i + len(marker)
			break
		}
	}
	if idx < 0 {
		t.Fatalf("no state in %s", raw)
	}
	end := idx
	for end < len(raw) && raw[end] != '&' {
		end++
	}
	return raw[idx:end]
}

func TestOAuthHappyPath(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	if conn.Status != StatusActive {
		t.Fatalf("expected active, got %s", conn.Status)
	}
	if conn.SealedAccessToken == "" || conn.SealedRefreshToken == "" {
		t.Fatalf("tokens must be stored sealed")
	}
	access, err := f.sealer.Open(conn.SealedAccessToken)
	if err != nil || access == "" {
		t.Fatalf("sealed token must round-trip: %v", err)
	}
	if conn.SealedAccessToken == access {
		t.Fatalf("token stored in plaintext")
	}
}

func TestDuplicateCallbackIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	url, err := f.manager.InitiateOAuth(ctx, f.user, f.deal, PlatformXero)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromURL(t, url)

	first, err := f.manager.HandleCallback(ctx, state, "grant-code")
	if err != nil {
		t.Fatalf("first callback: %v", err)
	}
	second, err := f.manager.HandleCallback(ctx, state, "grant-code")
	if err != nil {
		t.Fatalf("duplicate callback must succeed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate callback must return the same connection")
	}
	if first.SealedAccessToken != second.SealedAccessToken {
		t.Fatalf("duplicate callback must not re-exchange the code")
	}
}

func TestCallbackAfterExpiryFails(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	f := newFixture(t, WithManagerClock(func() time.Time { return clock }), WithStateTTL(5*time.Minute))
	ctx := context.Background()

	url, err := f.manager.InitiateOAuth(ctx, f.user, f.deal, PlatformXero)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromURL(t, url)

	clock = base.Add(6 * time.Minute)
	if _, err := f.manager.HandleCallback(ctx, state, "grant-code"); !apperr.IsKind(err, apperr.KindBadInput) {
		t.Fatalf("expected expiry failure, got %v", err)
	}
}

func TestUnknownStateRejected(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.HandleCallback(context.Background(), "forged", "code"); apperr.CodeOf(err) != "OAUTH_STATE_INVALID" {
		t.Fatalf("expected OAUTH_STATE_INVALID, got %v", err)
	}
}

func TestSecondActiveConnectionRejected(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	_, err := f.manager.InitiateOAuth(context.Background(), f.user, f.deal, PlatformXero)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict for duplicate active connection, got %v", err)
	}
}

func TestExchangeFailureMarksError(t *testing.T) {
	f := newFixture(t)
	f.driver.FailExchange = true
	ctx := context.Background()

	url, err := f.manager.InitiateOAuth(ctx, f.user, f.deal, PlatformXero)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := stateFromURL(t, url)
	if _, err := f.manager.HandleCallback(ctx, state, "bad-code"); err == nil {
		t.Fatalf("expected exchange failure")
	}

	ticket, err := f.store.TicketByState(ctx, state)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	conn, err := f.store.GetConnection(ctx, ticket.ConnectionID)
	if err != nil {
		t.Fatalf("connection: %v", err)
	}
	if conn.Status != StatusError {
		t.Fatalf("expected error status, got %s", conn.Status)
	}
}

func TestRefreshInsideGraceWindow(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	f := newFixture(t, WithManagerClock(func() time.Time { return clock }))
	f.driver.TokenTTL = time.Hour
	conn := f.connect(t)

	// Still fresh: refresh is a no-op.
	refreshed, err := f.manager.Refresh(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.driver.Refreshes() != 0 {
		t.Fatalf("fresh token must not be refreshed")
	}

	// Move inside the grace window.
	clock = base.Add(57 * time.Minute)
	refreshed, err = f.manager.Refresh(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.driver.Refreshes() != 1 {
		t.Fatalf("expected one refresh, got %d", f.driver.Refreshes())
	}
	if refreshed.Status != StatusActive {
		t.Fatalf("expected active after refresh, got %s", refreshed.Status)
	}
}

func TestRefreshFailureExpiresConnection(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	f := newFixture(t, WithManagerClock(func() time.Time { return clock }))
	conn := f.connect(t)

	f.driver.FailRefresh = true
	clock = base.Add(58 * time.Minute)
	refreshed, err := f.manager.Refresh(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Status != StatusExpired {
		t.Fatalf("expected expired after refresh failure, got %s", refreshed.Status)
	}
}

func TestDisconnectPurgesTokens(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	if err := f.manager.Disconnect(context.Background(), conn.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	got, err := f.store.GetConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRevoked {
		t.Fatalf("expected revoked, got %s", got.Status)
	}
	if got.SealedAccessToken != "" || got.SealedRefreshToken != "" || got.TokenExpiresAt != nil {
		t.Fatalf("tokens must be purged on disconnect")
	}
	if got.DeletedAt == nil {
		t.Fatalf("disconnect must set deleted_at")
	}
	if len(f.driver.Revoked()) != 1 {
		t.Fatalf("expected provider-side revocation")
	}

	// Idempotent.
	if err := f.manager.Disconnect(context.Background(), conn.ID); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}

func TestSealerRoundTripAndTamper(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal("tok_secret_value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := s.Open(sealed)
	if err != nil || plain != "tok_secret_value" {
		t.Fatalf("round trip failed: %q, %v", plain, err)
	}
	tampered := []byte(sealed)
	tampered[len(tampered)-5] ^= 0x01
	if _, err := s.Open(string(tampered)); err == nil {
		t.Fatalf("tampered ciphertext must fail authentication")
	}
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	if _, err := NewSealer("zz"); err == nil {
		t.Fatalf("non-hex key must fail")
	}
	if _, err := NewSealer("abcd"); err == nil {
		t.Fatalf("short key must fail")
	}
}
