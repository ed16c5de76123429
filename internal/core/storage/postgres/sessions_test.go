package postgres

import (
	"context"
	"database/sql"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	v1 "github.com/leadsight-lab/leadsight/internal/api/v1"
	"github.com/leadsight-lab/leadsight/internal/core/storage"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:                db,
		stmtSelectSession: mustPrepareStmt(t, db, mock, querySelectSession),
		stmtInsertSession: mustPrepareStmt(t, db, mock, queryInsertSessionIfAbsent),
		stmtLatestLead:    mustPrepareStmt(t, db, mock, queryLatestLeadForAnonymous),
		stmtInsertEvent:   mustPrepareStmt(t, db, mock, queryInsertEvent),
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)
	return stmt
}

func sessionRowColumns() []string {
	return []string{
		"id",
		"anonymous_id",
		"lead_id",
		"ip_address",
		"user_agent",
		"referrer",
		"utm_source",
		"utm_medium",
		"utm_campaign",
		"started_at",
	}
}

func TestAdapter_GetSession(t *testing.T) {
	startedAt := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(querySelectSession)).
			WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows(sessionRowColumns()).
				AddRow("sess-1", "anon-1", int64(7), "10.0.0.1", "Mozilla/5.0", nil, "newsletter", nil, nil, startedAt))

		session, err := adapter.GetSession(context.Background(), "sess-1")
		require.NoError(t, err)
		require.Equal(t, "sess-1", session.ID)
		require.Equal(t, "anon-1", session.AnonymousID)
		require.NotNil(t, session.LeadID)
		require.Equal(t, int64(7), *session.LeadID)
		require.Equal(t, "newsletter", session.UTMSource)
		require.Empty(t, session.Referrer)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(querySelectSession)).
			WithArgs("sess-missing").
			WillReturnRows(sqlmock.NewRows(sessionRowColumns()))

		_, err := adapter.GetSession(context.Background(), "sess-missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdapter_CreateSessionIfAbsent(t *testing.T) {
	startedAt := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	t.Run("inserts new session", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(queryInsertSessionIfAbsent)).
			WithArgs("sess-1", "anon-1", nil, "10.0.0.1", "Mozilla/5.0", nil, nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(startedAt))

		session, err := adapter.CreateSessionIfAbsent(context.Background(), &v1.Session{
			ID:          "sess-1",
			AnonymousID: "anon-1",
			IPAddress:   "10.0.0.1",
			UserAgent:   "Mozilla/5.0",
		})
		require.NoError(t, err)
		require.Equal(t, startedAt, session.StartedAt)
		require.Nil(t, session.LeadID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race reads winner back", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		// Conflict: the conditional insert returns no rows.
		mock.ExpectQuery(regexp.QuoteMeta(queryInsertSessionIfAbsent)).
			WithArgs("sess-1", "anon-1", nil, nil, nil, nil, nil, nil, nil).
			WillReturnRows(sqlmock.NewRows([]string{"started_at"}))

		mock.ExpectQuery(regexp.QuoteMeta(querySelectSession)).
			WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows(sessionRowColumns()).
				AddRow("sess-1", "anon-1", int64(3), "10.0.0.9", nil, nil, nil, nil, nil, startedAt))

		session, err := adapter.CreateSessionIfAbsent(context.Background(), &v1.Session{
			ID:          "sess-1",
			AnonymousID: "anon-1",
		})
		require.NoError(t, err)

		// The stored row is authoritative, not the caller's metadata.
		require.Equal(t, "10.0.0.9", session.IPAddress)
		require.NotNil(t, session.LeadID)
		require.Equal(t, int64(3), *session.LeadID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdapter_LatestLeadForAnonymous(t *testing.T) {
	t.Run("attributed session found", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(queryLatestLeadForAnonymous)).
			WithArgs("anon-1").
			WillReturnRows(sqlmock.NewRows([]string{"lead_id"}).AddRow(int64(7)))

		leadID, err := adapter.LatestLeadForAnonymous(context.Background(), "anon-1")
		require.NoError(t, err)
		require.Equal(t, int64(7), leadID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("still anonymous maps to ErrNotFound", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(queryLatestLeadForAnonymous)).
			WithArgs("anon-unknown").
			WillReturnRows(sqlmock.NewRows([]string{"lead_id"}))

		_, err := adapter.LatestLeadForAnonymous(context.Background(), "anon-unknown")
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdapter_SaveEvent(t *testing.T) {
	createdAt := time.Date(2026, 8, 20, 9, 5, 0, 0, time.UTC)

	t.Run("populates id and timestamp", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(queryInsertEvent)).
			WithArgs("sess-1", int64(7), "page_view", sqlmock.AnyArg(), "https://acme.example/pricing", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), createdAt))

		leadID := int64(7)
		event := &v1.Event{
			SessionID: "sess-1",
			LeadID:    &leadID,
			Type:      "page_view",
			Data:      map[string]interface{}{"scroll_depth": 80},
			PageURL:   "https://acme.example/pricing",
		}
		require.NoError(t, adapter.SaveEvent(context.Background(), event))
		require.Equal(t, int64(42), event.ID)
		require.Equal(t, createdAt, event.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marshal error short-circuits", func(t *testing.T) {
		adapter, mock, db := newMockAdapter(t)
		defer db.Close()

		err := adapter.SaveEvent(context.Background(), &v1.Event{
			SessionID: "sess-1",
			Type:      "page_view",
			Data:      map[string]interface{}{"value": math.NaN()},
		})
		require.Error(t, err)
		require.ErrorContains(t, err, "failed to marshal event data")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
