package publisher

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

type sentChunk struct {
	userID  string
	records int
}

// fakeSender collects deliveries instead of pushing them on the bus.
type fakeSender struct {
	sent    []sentChunk
	sendErr error
}

func (f *fakeSender) Send(ctx context.Context, userID string, data *metadata.Data) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentChunk{userID: userID, records: len(data.Records)})
	return nil
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return database.NewFromDB(sqlx.NewDb(mockDB, "sqlmock"), logger), mock
}

func subscriptionRows(id int, userID, usagePointID, series string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "user_id", "usage_point_id", "series_name", "subscribed_at",
		"notified_at", "status", "error",
		"consent_id", "consent_begins_at", "consent_expires_at",
	}).AddRow(id, userID, usagePointID, series, now,
		nil, nil, nil, 7, now.AddDate(0, -1, 0), now.AddDate(1, 0, 0))
}

func curveRecords(prm string, n int) []metadata.MetadataRecord {
	meta := metadata.ConsumptionPowerActiveRaw(prm, "PT30M")
	name := metadata.RecordName(prm, "consumption/power/active/raw")
	base := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

	var records []metadata.MetadataRecord
	for i := 0; i < n; i++ {
		records = append(records, metadata.MetadataRecord{
			Metadata: meta,
			Record: metadata.Record{
				Name:  name,
				Time:  base.Add(time.Duration(i) * 30 * time.Minute),
				Unit:  metadata.UnitWatt,
				Value: float64(1000 + i),
			},
		})
	}
	return records
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPublishDeliversInChunks(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	pub := NewPublisher(dao.NewSubscriptionsDAO(db), sender, 1000, 2, testLogger())

	mock.ExpectQuery(`FROM subscriptions`).
		WillReturnRows(subscriptionRows(21, "alice@example.fr", "30001444398081", "consumption/power/active/raw"))
	mock.ExpectExec(`UPDATE subscriptions SET status = NULL, notified_at`).
		WithArgs(21, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE subscriptions SET status = \$2`).
		WithArgs(21, models.CallOK, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pub.Publish(context.Background(), curveRecords("30001444398081", 5), "")
	require.NoError(t, err)

	// five records with chunk size two: 2 + 2 + 1
	require.Len(t, sender.sent, 3)
	assert.Equal(t, 2, sender.sent[0].records)
	assert.Equal(t, 2, sender.sent[1].records)
	assert.Equal(t, 1, sender.sent[2].records)
	assert.Equal(t, "alice@example.fr", sender.sent[0].userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishSkipsOtherUsersWhenNarrowed(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	pub := NewPublisher(dao.NewSubscriptionsDAO(db), sender, 1000, 10, testLogger())

	mock.ExpectQuery(`FROM subscriptions`).
		WillReturnRows(subscriptionRows(21, "alice@example.fr", "30001444398081", "consumption/power/active/raw"))

	err := pub.Publish(context.Background(), curveRecords("30001444398081", 3), "bob@example.fr")
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishNothingLeavesOnVetoedNotification(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	pub := NewPublisher(dao.NewSubscriptionsDAO(db), sender, 1000, 10, testLogger())

	mock.ExpectQuery(`FROM subscriptions`).
		WillReturnRows(subscriptionRows(21, "alice@example.fr", "30001444398081", "consumption/power/active/raw"))
	// the consent window check on notified_at refuses the update
	mock.ExpectExec(`UPDATE subscriptions SET status = NULL, notified_at`).
		WithArgs(21, sqlmock.AnyArg()).
		WillReturnError(errIntegrity{})

	err := pub.Publish(context.Background(), curveRecords("30001444398081", 3), "")
	require.NoError(t, err, "one refused delivery must not stop the run")
	assert.Empty(t, sender.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRecordsFailedDelivery(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{sendErr: errIntegrity{}}
	pub := NewPublisher(dao.NewSubscriptionsDAO(db), sender, 1000, 10, testLogger())

	mock.ExpectQuery(`FROM subscriptions`).
		WillReturnRows(subscriptionRows(21, "alice@example.fr", "30001444398081", "consumption/power/active/raw"))
	mock.ExpectExec(`UPDATE subscriptions SET status = NULL, notified_at`).
		WithArgs(21, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE subscriptions SET status = \$2`).
		WithArgs(21, models.CallFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pub.Publish(context.Background(), curveRecords("30001444398081", 3), "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type errIntegrity struct{}

func (errIntegrity) Error() string { return "new row violates check constraint" }
