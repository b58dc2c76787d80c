package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/finconn"
	"mergerdesk.io/internal/ratio"
	"mergerdesk.io/internal/statement"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestUpsertOrganizationMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`insert into organizations`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "organizations_slug_key"})

	_, err := s.UpsertOrganization(context.Background(), auth.Organization{ID: "org-1", Slug: "acme"})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if apperr.CodeOf(err) != "ORGANIZATION_SLUG_TAKEN" {
		t.Fatalf("expected ORGANIZATION_SLUG_TAKEN, got %s", apperr.CodeOf(err))
	}
}

func TestUserByExternalSubjectNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`select .+ from users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.UserByExternalSubject(context.Background(), "idp_missing")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func connRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "deal_id", "organization_id", "platform", "status",
		"external_org_id", "external_org_name", "sealed_access_token", "sealed_refresh_token",
		"token_expires_at", "last_synced_at", "last_sync_status", "deleted_at", "created_at", "updated_at",
	}).AddRow("conn-1", "deal-x", "org-a", "xero", "active",
		"", "", "sealed-a", "sealed-r", now.Add(time.Hour), nil, "", nil, now, now)
}

func TestWithConnectionLockSelectsForUpdate(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from financial_connections where id = \$1 for update`).
		WithArgs("conn-1").
		WillReturnRows(connRows(now))
	mock.ExpectExec(`update financial_connections set`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := s.WithConnectionLock(context.Background(), "conn-1", func(_ context.Context, c finconn.Connection) (finconn.Connection, error) {
		c.Status = finconn.StatusExpired
		return c, nil
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if updated.Status != finconn.StatusExpired {
		t.Fatalf("expected expired, got %s", updated.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithConnectionLockRollsBackOnCallbackError(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from financial_connections where id = \$1 for update`).
		WithArgs("conn-1").
		WillReturnRows(connRows(now))
	mock.ExpectRollback()

	_, err := s.WithConnectionLock(context.Background(), "conn-1", func(_ context.Context, c finconn.Connection) (finconn.Connection, error) {
		return c, apperr.New(apperr.KindBadInput, "CONNECTION_NOT_REFRESHABLE", "nope")
	})
	if apperr.CodeOf(err) != "CONNECTION_NOT_REFRESHABLE" {
		t.Fatalf("callback error must propagate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertStatementRoundTripsFigures(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	periodEnd := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	assets := decimal.NewFromInt(2000)
	st := statement.Statement{
		ID:             "stmt-1",
		ConnectionID:   "conn-1",
		DealID:         "deal-x",
		OrganizationID: "org-a",
		Platform:       finconn.PlatformXero,
		Type:           statement.TypeBalanceSheet,
		PeriodEnd:      periodEnd,
		Quality:        statement.QualityOK,
		TotalAssets:    &assets,
	}
	figures, err := marshalFigures(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectQuery(`insert into financial_statements`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "connection_id", "deal_id", "organization_id", "platform",
			"statement_type", "period_end", "currency", "quality",
			"total_assets", "total_liabilities", "total_equity", "figures", "created_at", "updated_at",
		}).AddRow("stmt-1", "conn-1", "deal-x", "org-a", "xero",
			"balance_sheet", periodEnd, "", "ok", "2000", nil, nil, figures, now, now))

	saved, err := s.UpsertStatement(context.Background(), st)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.TotalAssets == nil || !saved.TotalAssets.Equal(assets) {
		t.Fatalf("aggregate totals must come from the numeric columns: %+v", saved)
	}
	if saved.TotalLiabilities != nil {
		t.Fatalf("null numeric column must stay nil: %+v", saved)
	}
	if saved.Type != statement.TypeBalanceSheet || saved.ConnectionID != "conn-1" {
		t.Fatalf("relational columns must come from the row: %+v", saved)
	}
}

func TestMarshalFiguresExcludesAggregateTotals(t *testing.T) {
	assets := decimal.NewFromInt(2000)
	cash := decimal.NewFromInt(300)
	doc, err := marshalFigures(statement.Statement{TotalAssets: &assets, Cash: &cash})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round statement.Statement
	if err := unmarshalFigures(doc, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.TotalAssets != nil {
		t.Fatalf("total_assets belongs to its column, not the jsonb document")
	}
	if round.Cash == nil || !round.Cash.Equal(cash) {
		t.Fatalf("line items must survive the jsonb round trip: %+v", round)
	}
}

func TestReplaceRatiosSwapsSetInOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	value := decimal.RequireFromString("0.4286")

	mock.ExpectBegin()
	mock.ExpectExec(`delete from financial_ratios where statement_id = \$1`).
		WithArgs("stmt-1").
		WillReturnResult(sqlmock.NewResult(0, 47))
	mock.ExpectExec(`insert into financial_ratios`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ReplaceRatios(context.Background(), "stmt-1", []statement.RatioRecord{{
		ID:          "01JRATIO0000000000000000EX",
		StatementID: "stmt-1",
		DealID:      "deal-x",
		PeriodLabel: "2026-06-30",
		Name:        "debt_to_equity",
		Value:       &value,
		Quality:     ratio.QualityComputed,
		CreatedAt:   now,
	}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendUnderDealLockRequiresDeal(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`select id from deals where id = \$1 for update`).
		WithArgs("deal-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.AppendUnderDealLock(context.Background(), "deal-missing", nil)
	if apperr.CodeOf(err) != "DEAL_NOT_FOUND" {
		t.Fatalf("expected DEAL_NOT_FOUND, got %v", err)
	}
}
