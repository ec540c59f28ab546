package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

func newCallRecorder(db *database.DB) *CallRecorder {
	return NewCallRecorder(newConsentService(db), dao.NewCallsDAO(db), testLogger())
}

func expectCoveringConsent(mock sqlmock.Sqlmock) {
	now := time.Now().UTC()
	mock.ExpectQuery(`JOIN consents_usage_points`).
		WithArgs("alice@example.fr", "30001444398081").
		WillReturnRows(scopedConsentRows().
			AddRow(7, "Anne Dupont", "INDIVIDUAL", false,
				now.AddDate(0, -1, 0), now.AddDate(1, 0, 0), now.AddDate(0, -1, 0)))
}

func TestDoRecordsSuccessfulCall(t *testing.T) {
	db, mock := newMockDB(t)
	recorder := newCallRecorder(db)

	expectCoveringConsent(mock)
	mock.ExpectQuery(`INSERT INTO webservices_calls`).
		WithArgs(models.WebserviceConsultMeasures, "30001444398081", "alice@example.fr",
			7, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectExec(`UPDATE webservices_calls SET status`).
		WithArgs(31, models.CallOK, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ran := false
	call, err := recorder.Do(context.Background(), models.WebserviceConsultMeasures,
		"alice@example.fr", "30001444398081", func(ctx context.Context) error {
			ran = true
			return nil
		})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 31, call.ID)
	require.NotNil(t, call.Status)
	assert.Equal(t, models.CallOK, *call.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoRecordsFailedCall(t *testing.T) {
	db, mock := newMockDB(t)
	recorder := newCallRecorder(db)

	expectCoveringConsent(mock)
	mock.ExpectQuery(`INSERT INTO webservices_calls`).
		WithArgs(models.WebserviceConsultMeasures, "30001444398081", "alice@example.fr",
			7, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(32))
	mock.ExpectExec(`UPDATE webservices_calls SET status`).
		WithArgs(32, models.CallFailed, "SGT4H8: out of range").
		WillReturnResult(sqlmock.NewResult(0, 1))

	callErr := errors.New("SGT4H8: out of range")
	call, err := recorder.Do(context.Background(), models.WebserviceConsultMeasures,
		"alice@example.fr", "30001444398081", func(ctx context.Context) error {
			return callErr
		})
	assert.ErrorIs(t, err, callErr)
	require.NotNil(t, call)
	require.NotNil(t, call.Status)
	assert.Equal(t, models.CallFailed, *call.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoRefusedIntentNeverCallsUpstream(t *testing.T) {
	db, mock := newMockDB(t)
	recorder := newCallRecorder(db)

	expectCoveringConsent(mock)
	// the consent check constraint vetoes the intent row
	mock.ExpectQuery(`INSERT INTO webservices_calls`).
		WillReturnError(&pq.Error{Code: "23514", Message: "called_at outside consent window"})

	ran := false
	_, err := recorder.Do(context.Background(), models.WebserviceConsultMeasures,
		"alice@example.fr", "30001444398081", func(ctx context.Context) error {
			ran = true
			return nil
		})

	var na *NotAuthorizedError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, ReasonIntegrity, na.Reason)
	assert.False(t, ran, "upstream call must not run when the intent row is refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoWithoutConsentNeverTouchesLedger(t *testing.T) {
	db, mock := newMockDB(t)
	recorder := newCallRecorder(db)

	mock.ExpectQuery(`JOIN consents_usage_points`).
		WithArgs("alice@example.fr", "30001444398081").
		WillReturnRows(scopedConsentRows())
	mock.ExpectQuery(`c\.is_open`).
		WithArgs("alice@example.fr", sqlmock.AnyArg()).
		WillReturnRows(scopedConsentRows())

	ran := false
	_, err := recorder.Do(context.Background(), models.WebserviceConsultMeasures,
		"alice@example.fr", "30001444398081", func(ctx context.Context) error {
			ran = true
			return nil
		})

	var na *NotAuthorizedError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, ReasonNoConsent, na.Reason)
	assert.False(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}
