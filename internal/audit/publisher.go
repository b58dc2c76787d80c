package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mergerdesk.io/internal/obs"
)

// LogPublisher mirrors entries as structured log lines. This is the
// production default when no webhook is configured.
func LogPublisher() Publisher {
	return func(_ context.Context, e Entry) error {
		obs.Emit(map[string]any{
			"ts":              e.CreatedAt.Format(time.RFC3339Nano),
			"type":            "audit",
			"id":              e.ID,
			"action":          string(e.Action),
			"actor_user_id":   e.ActorUserID,
			"target_user_id":  e.TargetUserID,
			"organization_id": e.OrganizationID,
			"detail":          e.Detail,
		})
		return nil
	}
}

// WebhookPublisher POSTs entries to a configured endpoint. The caller bounds
// the call via the recorder timeout.
func WebhookPublisher(url string, client *http.Client) Publisher {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, e Entry) error {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("audit webhook: %s", resp.Status)
		}
		return nil
	}
}

// Memory collects entries in process. Test override for the secondary sink.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Publisher returns a Publisher that appends to the in-memory list.
func (m *Memory) Publisher() Publisher {
	return func(_ context.Context, e Entry) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = append(m.entries, e)
		return nil
	}
}

// Entries returns a copy of the collected entries.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// AppendAudit lets Memory double as a primary store in tests.
func (m *Memory) AppendAudit(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}
