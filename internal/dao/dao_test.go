package dao

import (
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/database"
)

// newMockDB wraps a sqlmock connection in the database layer so DAOs
// run against scripted expectations.
func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return database.NewFromDB(sqlx.NewDb(mockDB, "sqlmock"), logger), mock
}
