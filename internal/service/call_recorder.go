package service

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/metrics"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// CallRecorder wraps every DSO call in the record-then-call
// discipline: the call intent is committed to the ledger with a null
// status before the wire call goes out, then the row moves exactly
// once to OK or FAILED. If the database refuses the intent row, the
// call is never issued.
type CallRecorder struct {
	consents *ConsentService
	callsDAO *dao.CallsDAO
	logger   *logrus.Logger
}

// NewCallRecorder creates a new CallRecorder instance.
func NewCallRecorder(consents *ConsentService, callsDAO *dao.CallsDAO, logger *logrus.Logger) *CallRecorder {
	return &CallRecorder{consents: consents, callsDAO: callsDAO, logger: logger}
}

// Do resolves the consent backing (user, usage point) now, records the
// call intent, runs fn and records its outcome. The error returned by
// fn is passed through unchanged after the ledger update.
func (r *CallRecorder) Do(ctx context.Context, webservice, userID, usagePointID string, fn func(ctx context.Context) error) (*models.WebservicesCall, error) {
	now := time.Now().UTC()

	consent, err := r.consents.Resolve(ctx, userID, usagePointID, now)
	if err != nil {
		var na *NotAuthorizedError
		if errors.As(err, &na) {
			metrics.NotAuthorized.WithLabelValues(string(na.Reason)).Inc()
		}
		return nil, err
	}

	call := &models.WebservicesCall{
		Webservice:       webservice,
		UsagePointID:     usagePointID,
		UserID:           userID,
		ConsentID:        consent.ID,
		ConsentBeginsAt:  consent.BeginsAt,
		ConsentExpiresAt: consent.ExpiresAt,
		CalledAt:         now,
	}

	id, err := r.callsDAO.Insert(ctx, call)
	if err != nil {
		if isIntegrityViolation(err) {
			// The consent window no longer covers now, or a link
			// disappeared between resolution and recording.
			metrics.NotAuthorized.WithLabelValues(string(ReasonIntegrity)).Inc()
			return nil, &NotAuthorizedError{Reason: ReasonIntegrity, UserID: userID, UsagePointID: usagePointID}
		}
		return nil, err
	}
	call.ID = id

	log := r.logger.WithFields(logrus.Fields{
		"call_id":     id,
		"webservice":  webservice,
		"usage_point": usagePointID,
		"user":        userID,
		"consent_id":  consent.ID,
	})

	callErr := fn(ctx)
	if callErr != nil {
		status := models.CallFailed
		msg := callErr.Error()
		call.Status = &status
		call.Error = &msg
		if err := r.callsDAO.SetStatus(ctx, id, models.CallFailed, &msg); err != nil {
			log.WithError(err).Error("Failed to record call failure")
		}
		log.WithError(callErr).Warn("Webservice call failed")
		metrics.WebservicesCalls.WithLabelValues(webservice, string(models.CallFailed)).Inc()
		return call, callErr
	}

	status := models.CallOK
	call.Status = &status
	if err := r.callsDAO.SetStatus(ctx, id, models.CallOK, nil); err != nil {
		log.WithError(err).Error("Failed to record call success")
		return call, err
	}
	log.Info("Webservice call succeeded")
	metrics.WebservicesCalls.WithLabelValues(webservice, string(models.CallOK)).Inc()

	return call, nil
}

// isIntegrityViolation reports whether err is a PostgreSQL integrity
// constraint violation (class 23), the signature of a consent check or
// composite foreign key veto.
func isIntegrityViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return false
}
