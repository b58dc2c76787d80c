package narrative

import (
	"context"
	"sort"
	"sync"
	"testing"

	"mergerdesk.io/internal/apperr"
)

type memStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rows  map[string][]Narrative // dealID -> versions in append order
}

func newMemStore() *memStore {
	return &memStore{locks: map[string]*sync.Mutex{}, rows: map[string][]Narrative{}}
}

func (s *memStore) dealLock(dealID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[dealID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dealID] = l
	}
	return l
}

func (s *memStore) AppendUnderDealLock(ctx context.Context, dealID string, fn func(ctx context.Context, head *Narrative) (Narrative, error)) (Narrative, error) {
	l := s.dealLock(dealID)
	l.Lock()
	defer l.Unlock()

	var head *Narrative
	s.mu.Lock()
	if versions := s.rows[dealID]; len(versions) > 0 {
		h := versions[len(versions)-1]
		head = &h
	}
	s.mu.Unlock()

	n, err := fn(ctx, head)
	if err != nil {
		return Narrative{}, err
	}
	s.mu.Lock()
	s.rows[dealID] = append(s.rows[dealID], n)
	s.mu.Unlock()
	return n, nil
}

func (s *memStore) NarrativeByID(_ context.Context, dealID, id string) (Narrative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rows[dealID] {
		if n.ID == id {
			return n, nil
		}
	}
	return Narrative{}, apperr.New(apperr.KindNotFound, "NARRATIVE_NOT_FOUND", "narrative not found")
}

func (s *memStore) Head(_ context.Context, dealID string) (Narrative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.rows[dealID]
	if len(versions) == 0 {
		return Narrative{}, apperr.New(apperr.KindNotFound, "NARRATIVE_NOT_FOUND", "deal has no narrative")
	}
	return versions[len(versions)-1], nil
}

func (s *memStore) VersionsByDeal(_ context.Context, dealID string) ([]Narrative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Narrative(nil), s.rows[dealID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func TestFirstVersionHasNoPredecessor(t *testing.T) {
	ledger := NewLedger(newMemStore())
	n, err := ledger.Add(context.Background(), "deal-x", "org-a", "u1", Payload{Content: "v1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if n.Version != 1 {
		t.Fatalf("first version must be 1, got %d", n.Version)
	}
	if n.SupersedesID != nil {
		t.Fatalf("first version must not supersede anything")
	}
}

func TestAppendIncrementsAndSupersedes(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()

	first, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: "v1"})
	if err != nil {
		t.Fatalf("add v1: %v", err)
	}
	second, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: "v2"})
	if err != nil {
		t.Fatalf("add v2: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}
	if second.SupersedesID == nil || *second.SupersedesID != first.ID {
		t.Fatalf("v2 must supersede v1")
	}

	head, err := ledger.Current(ctx, "deal-x")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if head.ID != second.ID {
		t.Fatalf("head must be the latest version")
	}
}

func TestVersionCountersAreIndependentPerDeal(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()

	if _, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: "x1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: "x2"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	other, err := ledger.Add(ctx, "deal-y", "org-a", "u1", Payload{Content: "y1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if other.Version != 1 {
		t.Fatalf("deal-y must start at version 1, got %d", other.Version)
	}
}

func TestChainWalksBackToFirstVersion(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()

	var lastID string
	for _, content := range []string{"v1", "v2", "v3"} {
		n, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: content})
		if err != nil {
			t.Fatalf("add %s: %v", content, err)
		}
		lastID = n.ID
	}

	chain, err := ledger.Chain(ctx, "deal-x", lastID)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(chain))
	}
	for i, want := range []int{3, 2, 1} {
		if chain[i].Version != want {
			t.Fatalf("chain[%d] version = %d, want %d", i, chain[i].Version, want)
		}
	}
}

func TestConcurrentAppendsStayMonotonic(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Add(ctx, "deal-x", "org-a", "u1", Payload{Content: "draft"}); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := ledger.History(ctx, "deal-x")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d versions, got %d", writers, len(history))
	}
	seen := map[int]bool{}
	for _, n := range history {
		if seen[n.Version] {
			t.Fatalf("duplicate version %d", n.Version)
		}
		seen[n.Version] = true
	}
	for v := 1; v <= writers; v++ {
		if !seen[v] {
			t.Fatalf("missing version %d", v)
		}
	}
}

func TestEmptyContentRejected(t *testing.T) {
	ledger := NewLedger(newMemStore())
	_, err := ledger.Add(context.Background(), "deal-x", "org-a", "u1", Payload{Content: "  "})
	if !apperr.IsKind(err, apperr.KindBadInput) {
		t.Fatalf("expected BadInput, got %v", err)
	}
	if apperr.CodeOf(err) != "NARRATIVE_EMPTY" {
		t.Fatalf("expected NARRATIVE_EMPTY, got %s", apperr.CodeOf(err))
	}
}
