package pg

import (
	"context"
	"encoding/json"

	"mergerdesk.io/internal/audit"
)

// AppendAudit writes one immutable row. There is no update path.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	claims := []byte("{}")
	if len(e.Claims) > 0 {
		var err error
		claims, err = json.Marshal(e.Claims)
		if err != nil {
			return err
		}
	}
	detail, err := json.Marshal(map[string]any{"detail": e.Detail, "claims": json.RawMessage(claims)})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_entries (id, organization_id, actor_id, subject_id, action, detail, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.OrganizationID, e.ActorUserID, e.TargetUserID, string(e.Action), detail, e.CreatedAt)
	return err
}

// AuditByOrganization lists recent entries for a tenant, newest first.
func (s *Store) AuditByOrganization(ctx context.Context, organizationID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, actor_id, subject_id, action, detail, created_at
		from audit_entries
		where organization_id = $1
		order by created_at desc
		limit $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorUserID, &e.TargetUserID, &e.Action, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		var wrapped struct {
			Detail string         `json:"detail"`
			Claims map[string]any `json:"claims"`
		}
		if err := json.Unmarshal(detail, &wrapped); err == nil {
			e.Detail = wrapped.Detail
			if len(wrapped.Claims) > 0 {
				e.Claims = wrapped.Claims
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
