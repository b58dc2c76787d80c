package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/obs"
)

// Production schemas drift: columns get added by hand, revisions get
// re-run after partial failures. Every operation here checks the live
// schema before touching it.

func tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`select exists (
			select 1 from information_schema.tables
			where table_schema = current_schema() and table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`select exists (
			select 1 from information_schema.columns
			where table_schema = current_schema() and table_name = $1 and column_name = $2
		)`, table, column).Scan(&exists)
	return exists, err
}

func constraintExists(ctx context.Context, tx *sql.Tx, table, constraint string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`select exists (
			select 1 from information_schema.table_constraints
			where table_schema = current_schema() and table_name = $1 and constraint_name = $2
		)`, table, constraint).Scan(&exists)
	return exists, err
}

// columnType returns the information_schema data type and character
// length for a column.
func columnType(ctx context.Context, tx *sql.Tx, table, column string) (string, sql.NullInt64, error) {
	var dataType string
	var charLen sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`select data_type, character_maximum_length from information_schema.columns
		 where table_schema = current_schema() and table_name = $1 and column_name = $2`,
		table, column).Scan(&dataType, &charLen)
	if err == sql.ErrNoRows {
		return "", charLen, apperr.Newf(apperr.KindSchemaDrift, "COLUMN_MISSING", "column %s.%s does not exist", table, column)
	}
	return dataType, charLen, err
}

// CreateTable executes the DDL unless the table already exists.
func CreateTable(table, ddl string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		exists, err := tableExists(ctx, tx, table)
		if err != nil {
			return err
		}
		if exists {
			obs.Log("migrate: table exists, skipping create", map[string]any{"table": table})
			return nil
		}
		_, err = tx.ExecContext(ctx, ddl)
		return err
	}
}

// DropTable drops the table when present.
func DropTable(table string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`drop table if exists %q`, table))
		return err
	}
}

// AddColumn adds a column unless it is already there. The table must
// exist.
func AddColumn(table, column, definition string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		exists, err := tableExists(ctx, tx, table)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.Newf(apperr.KindSchemaDrift, "TABLE_MISSING", "cannot add column to missing table %s", table)
		}
		present, err := columnExists(ctx, tx, table, column)
		if err != nil {
			return err
		}
		if present {
			obs.Log("migrate: column exists, skipping add", map[string]any{"table": table, "column": column})
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`alter table %q add column %q %s`, table, column, definition))
		return err
	}
}

// DropColumn drops a column when present.
func DropColumn(table, column string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		present, err := columnExists(ctx, tx, table, column)
		if err != nil {
			return err
		}
		if !present {
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`alter table %q drop column %q`, table, column))
		return err
	}
}

// RenameColumn renames from to to. A rename that already happened is a
// no-op; a schema where neither name exists, or both do, is drift.
func RenameColumn(table, from, to string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		hasFrom, err := columnExists(ctx, tx, table, from)
		if err != nil {
			return err
		}
		hasTo, err := columnExists(ctx, tx, table, to)
		if err != nil {
			return err
		}
		switch {
		case hasFrom && !hasTo:
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`alter table %q rename column %q to %q`, table, from, to))
			return err
		case !hasFrom && hasTo:
			obs.Log("migrate: column already renamed", map[string]any{"table": table, "column": to})
			return nil
		case hasFrom && hasTo:
			return apperr.Newf(apperr.KindSchemaDrift, "RENAME_AMBIGUOUS", "%s has both %s and %s", table, from, to)
		default:
			return apperr.Newf(apperr.KindSchemaDrift, "COLUMN_MISSING", "%s has neither %s nor %s", table, from, to)
		}
	}
}

// AddForeignKey creates the constraint after verifying the two columns
// share a compatible type. Incompatibility is surfaced, not papered over;
// the uuid-to-char coercion exists for exactly that case.
func AddForeignKey(constraint, table, column, refTable, refColumn string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		present, err := constraintExists(ctx, tx, table, constraint)
		if err != nil {
			return err
		}
		if present {
			return nil
		}
		srcType, srcLen, err := columnType(ctx, tx, table, column)
		if err != nil {
			return err
		}
		refType, refLen, err := columnType(ctx, tx, refTable, refColumn)
		if err != nil {
			return err
		}
		if srcType != refType || srcLen != refLen {
			return apperr.Newf(apperr.KindSchemaDrift, "FK_TYPE_MISMATCH",
				"%s.%s (%s) and %s.%s (%s) have incompatible types",
				table, column, srcType, refTable, refColumn, refType)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`alter table %q add constraint %q foreign key (%q) references %q (%q)`,
			table, constraint, column, refTable, refColumn))
		return err
	}
}

// DropConstraint drops a constraint when present.
func DropConstraint(table, constraint string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`alter table %q drop constraint if exists %q`, table, constraint))
		return err
	}
}

// CoerceUUIDColumnToChar36 rewrites a uuid column as char(36), converting
// existing rows through textual serialization. One atomic step so foreign
// keys can be re-applied in the same batch. Running it against a column
// already coerced is a no-op.
func CoerceUUIDColumnToChar36(table, column string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		dataType, charLen, err := columnType(ctx, tx, table, column)
		if err != nil {
			return err
		}
		switch {
		case dataType == "character" && charLen.Valid && charLen.Int64 == 36:
			obs.Log("migrate: column already char(36)", map[string]any{"table": table, "column": column})
			return nil
		case dataType == "uuid":
			_, err = tx.ExecContext(ctx, fmt.Sprintf(
				`alter table %q alter column %q type char(36) using %q::text`, table, column, column))
			return err
		default:
			return apperr.Newf(apperr.KindSchemaDrift, "COERCE_UNEXPECTED_TYPE",
				"%s.%s is %s, expected uuid or char(36)", table, column, dataType)
		}
	}
}

// Exec runs a raw statement. For operations with no defensive variant.
func Exec(stmt string) OpFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	}
}
