package migrate

import (
	"context"
	"database/sql"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/obs"
)

const ensureHeadSQL = `
create table if not exists schema_head (
	id smallint primary key default 1 check (id = 1),
	revision_id text not null,
	updated_at timestamptz not null default now()
)`

// Runner applies the revision graph to a database. The single-row
// schema_head table records the current head identifier.
type Runner struct {
	db      *sql.DB
	catalog *Catalog
}

// NewRunner constructs a Runner.
func NewRunner(db *sql.DB, catalog *Catalog) *Runner {
	return &Runner{db: db, catalog: catalog}
}

func (r *Runner) ensureHead(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ensureHeadSQL); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`insert into schema_head (id, revision_id) values (1, '') on conflict (id) do nothing`)
	return err
}

// Head returns the recorded head revision; empty on a pristine database.
func (r *Runner) Head(ctx context.Context) (string, error) {
	if err := r.ensureHead(ctx); err != nil {
		return "", err
	}
	var head string
	if err := r.db.QueryRowContext(ctx, `select revision_id from schema_head where id = 1`).Scan(&head); err != nil {
		return "", err
	}
	return head, nil
}

// resolvedHead is Head plus the catalog check. A head that no longer
// resolves usually means a revision file was removed after being applied;
// the repair tool rewrites it.
func (r *Runner) resolvedHead(ctx context.Context) (string, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return "", err
	}
	if head != "" {
		if _, ok := r.catalog.Revision(head); !ok {
			return "", apperr.Newf(apperr.KindSchemaDrift, "HEAD_UNRESOLVED",
				"recorded head %s is not in the revision catalog; run repair-head", head)
		}
	}
	return head, nil
}

func setHead(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		`update schema_head set revision_id = $1, updated_at = now() where id = 1`, id)
	return err
}

// Upgrade walks the graph from the current head to target, applying
// forward operations in topological order. The whole walk commits as one
// transaction so coercions and dependent constraints land together.
func (r *Runner) Upgrade(ctx context.Context, target string) error {
	head, err := r.resolvedHead(ctx)
	if err != nil {
		return err
	}
	plan, err := r.catalog.UpgradePlan(head, target)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		obs.Log("migrate: nothing to apply", map[string]any{"head": head})
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rev := range plan {
		obs.Log("migrate: applying", map[string]any{"revision": rev.ID, "merge": rev.IsMerge()})
		if rev.Up != nil {
			if err := rev.Up(ctx, tx); err != nil {
				return apperr.Wrap(apperr.KindSchemaDrift, "REVISION_FAILED", "revision "+rev.ID+" failed", err)
			}
		}
		if err := setHead(ctx, tx, rev.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpgradeAll upgrades to the catalog's single head. More than one head
// means the branches were never merged.
func (r *Runner) UpgradeAll(ctx context.Context) error {
	heads := r.catalog.Heads()
	if len(heads) != 1 {
		return apperr.Newf(apperr.KindBadInput, "MULTIPLE_HEADS",
			"catalog has %d heads; add a merge revision", len(heads))
	}
	return r.Upgrade(ctx, heads[0])
}

// Downgrade reverses revisions from the current head back to target; an
// empty target reverses everything.
func (r *Runner) Downgrade(ctx context.Context, target string) error {
	head, err := r.resolvedHead(ctx)
	if err != nil {
		return err
	}
	plan, err := r.catalog.DowngradePlan(head, target)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	remaining := r.catalog.applied(head)
	for _, rev := range plan {
		obs.Log("migrate: reversing", map[string]any{"revision": rev.ID})
		if rev.Down != nil {
			if err := rev.Down(ctx, tx); err != nil {
				return apperr.Wrap(apperr.KindSchemaDrift, "REVISION_FAILED", "reversing "+rev.ID+" failed", err)
			}
		}
		delete(remaining, rev.ID)
		if err := setHead(ctx, tx, downgradeHead(r.catalog, remaining)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// downgradeHead picks the head of what remains applied: the unique
// remaining revision with no remaining children.
func downgradeHead(c *Catalog, remaining map[string]bool) string {
	for i := len(c.topo) - 1; i >= 0; i-- {
		if remaining[c.topo[i]] {
			return c.topo[i]
		}
	}
	return ""
}

// Status summarizes where the database stands relative to the catalog.
type Status struct {
	Head    string   `json:"head"`
	Pending []string `json:"pending"`
	Total   int      `json:"total"`
}

// Status reports the recorded head and the revisions not yet applied.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Head: head, Total: len(r.catalog.topo)}
	if head != "" {
		if _, ok := r.catalog.Revision(head); !ok {
			// Unresolved head: report everything as pending and let the
			// operator repair.
			st.Pending = append([]string(nil), r.catalog.topo...)
			return st, nil
		}
	}
	done := r.catalog.applied(head)
	for _, id := range r.catalog.topo {
		if !done[id] {
			st.Pending = append(st.Pending, id)
		}
	}
	return st, nil
}
