// Package pg implements every persistence surface over PostgreSQL through
// database/sql with the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/deal"
	"mergerdesk.io/internal/finconn"
	"mergerdesk.io/internal/identity"
	"mergerdesk.io/internal/narrative"
	"mergerdesk.io/internal/statement"
)

// Store bundles the per-domain store implementations over one pool.
type Store struct {
	db *sql.DB
}

var (
	_ identity.Store  = (*Store)(nil)
	_ audit.Store     = (*Store)(nil)
	_ deal.Directory  = (*Store)(nil)
	_ finconn.Store   = (*Store)(nil)
	_ statement.Store = (*Store)(nil)
	_ narrative.Store = (*Store)(nil)
)

// Open connects and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// uniqueViolation maps the pg unique-violation code onto the Conflict
// kind so services can branch without importing pgconn.
func uniqueViolation(err error, code, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Wrap(apperr.KindConflict, code, msg, err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
