package service

import (
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return database.NewFromDB(sqlx.NewDb(mockDB, "sqlmock"), testLogger()), mock
}

func newConsentService(db *database.DB) *ConsentService {
	return NewConsentService(db,
		dao.NewUsersDAO(db),
		dao.NewUsagePointsDAO(db),
		dao.NewConsentsDAO(db),
		testLogger())
}

func scopedConsentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "issuer_name", "issuer_type", "is_open",
		"begins_at", "expires_at", "created_at",
	})
}
