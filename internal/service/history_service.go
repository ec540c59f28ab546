package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
)

// SgeHistorian is the slice of the DSO client the history pipeline
// needs.
type SgeHistorian interface {
	GetMeasurements(ctx context.Context, series, usagePointID string, start, end time.Time) (*metadata.Data, error)
}

// HistoryService serves one-shot metered history queries.
type HistoryService struct {
	usersDAO *dao.UsersDAO
	recorder *CallRecorder
	sge      SgeHistorian
	logger   *logrus.Logger
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(usersDAO *dao.UsersDAO, recorder *CallRecorder, sgeClient SgeHistorian, logger *logrus.Logger) *HistoryService {
	return &HistoryService{
		usersDAO: usersDAO,
		recorder: recorder,
		sge:      sgeClient,
		logger:   logger,
	}
}

// GetHistory fetches the history of one record identifier for a user.
// Every access is consent-checked, recorded in the call ledger and
// logged.
func (s *HistoryService) GetHistory(ctx context.Context, userID, identifier string, start, end time.Time) (*metadata.Data, error) {
	usagePointID, series, err := metadata.ParseIdentifier(identifier)
	if err != nil {
		return nil, &BadRequestError{Message: err.Error()}
	}
	if series == "" {
		return nil, &BadRequestError{Message: fmt.Sprintf("identifier %q does not name a series", identifier)}
	}
	if _, ok := sge.Measurements[series]; !ok {
		return nil, &BadRequestError{Message: fmt.Sprintf("%s measurement is not known", series)}
	}
	if !end.After(start) {
		return nil, &BadRequestError{Message: "end_time must be after start_time"}
	}

	if _, err := s.usersDAO.Get(ctx, userID); err != nil {
		return nil, &NotAuthorizedError{Reason: ReasonNoConsent, UserID: userID, UsagePointID: usagePointID}
	}

	s.logger.WithFields(logrus.Fields{
		"user":       userID,
		"identifier": identifier,
		"start":      start,
		"end":        end,
	}).Info("History access")

	var data *metadata.Data
	_, err = s.recorder.Do(ctx, models.WebserviceConsultMeasures, userID, usagePointID, func(ctx context.Context) error {
		var callErr error
		data, callErr = s.sge.GetMeasurements(ctx, series, usagePointID, start, end)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
