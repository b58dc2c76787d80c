package migrate

import (
	"context"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/obs"
)

// RepairHead rewrites the recorded head to a named surviving revision
// when the current head no longer resolves in the catalog. A head that
// still resolves is left alone, so running the tool twice is safe.
func (r *Runner) RepairHead(ctx context.Context, survivor string) (bool, error) {
	if _, ok := r.catalog.Revision(survivor); !ok {
		return false, apperr.Newf(apperr.KindBadInput, "REVISION_UNKNOWN", "survivor revision %s is not in the catalog", survivor)
	}
	head, err := r.Head(ctx)
	if err != nil {
		return false, err
	}
	if head == "" {
		obs.Log("migrate: no head recorded, nothing to repair", nil)
		return false, nil
	}
	if _, ok := r.catalog.Revision(head); ok {
		obs.Log("migrate: head resolves, nothing to repair", map[string]any{"head": head})
		return false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := setHead(ctx, tx, survivor); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	obs.Log("migrate: head repaired", map[string]any{"from": head, "to": survivor})
	return true, nil
}
