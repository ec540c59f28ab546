package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// fakeHistorian returns a canned load curve.
type fakeHistorian struct {
	data  *metadata.Data
	err   error
	calls int
}

func (f *fakeHistorian) GetMeasurements(ctx context.Context, series, usagePointID string, start, end time.Time) (*metadata.Data, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newHistoryService(db *database.DB, historian SgeHistorian) *HistoryService {
	recorder := NewCallRecorder(newConsentService(db), dao.NewCallsDAO(db), testLogger())
	return NewHistoryService(dao.NewUsersDAO(db), recorder, historian, testLogger())
}

func TestGetHistoryValidatesRequest(t *testing.T) {
	db, _ := newMockDB(t)
	svc := newHistoryService(db, &fakeHistorian{})

	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	tests := []struct {
		name       string
		identifier string
		start, end time.Time
		wantErr    string
	}{
		{"malformed identifier", "not-an-identifier", start, end, "unexpected record identifier"},
		{"identifier without series", "urn:dev:prm:30001444398081", start, end, "does not name a series"},
		{"unknown series", "urn:dev:prm:30001444398081_consumption/power/reactive/raw", start, end, "not known"},
		{"inverted window", "urn:dev:prm:30001444398081_consumption/power/active/raw", end, start, "after start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetHistory(context.Background(), "alice@example.fr", tt.identifier, tt.start, tt.end)
			var br *BadRequestError
			require.ErrorAs(t, err, &br)
			assert.Contains(t, br.Message, tt.wantErr)
		})
	}
}

func TestGetHistoryRefusesUnregisteredUser(t *testing.T) {
	db, mock := newMockDB(t)
	historian := &fakeHistorian{}
	svc := newHistoryService(db, historian)

	mock.ExpectQuery(`SELECT bare_jid FROM users`).
		WithArgs("stranger@example.fr").
		WillReturnError(sql.ErrNoRows)

	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetHistory(context.Background(), "stranger@example.fr",
		"urn:dev:prm:30001444398081_consumption/power/active/raw", start, start.AddDate(0, 0, 1))

	var na *NotAuthorizedError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, ReasonNoConsent, na.Reason)
	assert.Zero(t, historian.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHistoryRecordsGuardedCall(t *testing.T) {
	db, mock := newMockDB(t)

	meta := metadata.ConsumptionPowerActiveRaw("30001444398081", "PT30M")
	historian := &fakeHistorian{data: &metadata.Data{
		Metadata: &meta,
		Records: []metadata.Record{{
			Name:  metadata.RecordName("30001444398081", "consumption/power/active/raw"),
			Time:  time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
			Unit:  metadata.UnitWatt,
			Value: 1500,
		}},
	}}
	svc := newHistoryService(db, historian)

	mock.ExpectQuery(`SELECT bare_jid FROM users`).
		WithArgs("alice@example.fr").
		WillReturnRows(sqlmock.NewRows([]string{"bare_jid"}).AddRow("alice@example.fr"))
	expectCoveringConsent(mock)
	mock.ExpectQuery(`INSERT INTO webservices_calls`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectExec(`UPDATE webservices_calls SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	data, err := svc.GetHistory(context.Background(), "alice@example.fr",
		"urn:dev:prm:30001444398081_consumption/power/active/raw", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, data.Records, 1)
	assert.Equal(t, 1500.0, data.Records[0].Value)
	assert.Equal(t, 1, historian.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
