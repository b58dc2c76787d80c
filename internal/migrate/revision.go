// Package migrate runs the schema revision graph. Revisions form a DAG:
// nodes may have several parents, and a multi-parent node is a merge node
// reconciling divergent branches. Every operation tolerates prior partial
// or duplicate application.
package migrate

import (
	"context"
	"database/sql"
)

// OpFunc is one schema operation, executed inside the migration
// transaction.
type OpFunc func(ctx context.Context, tx *sql.Tx) error

// Revision is one node of the graph.
type Revision struct {
	ID      string
	Parents []string
	// Branch is a human label for the feature branch the revision came
	// from. Informational only.
	Branch string
	Up     OpFunc
	Down   OpFunc
}

// IsMerge reports whether the revision reconciles more than one parent.
// Merge nodes carry no operations of their own.
func (r Revision) IsMerge() bool { return len(r.Parents) > 1 }

// Ops chains operations into one OpFunc.
func Ops(ops ...OpFunc) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, op := range ops {
			if err := op(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}
}
