package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// ConsentService manages the consent ledger and resolves which consent
// backs a given (user, usage point) pair at a given instant.
type ConsentService struct {
	db             *database.DB
	usersDAO       *dao.UsersDAO
	usagePointsDAO *dao.UsagePointsDAO
	consentsDAO    *dao.ConsentsDAO
	logger         *logrus.Logger
}

// NewConsentService creates a new ConsentService instance.
func NewConsentService(db *database.DB, usersDAO *dao.UsersDAO, usagePointsDAO *dao.UsagePointsDAO, consentsDAO *dao.ConsentsDAO, logger *logrus.Logger) *ConsentService {
	return &ConsentService{
		db:             db,
		usersDAO:       usersDAO,
		usagePointsDAO: usagePointsDAO,
		consentsDAO:    consentsDAO,
		logger:         logger,
	}
}

// RegisterUser records a messaging client. Registering twice is a
// no-op.
func (s *ConsentService) RegisterUser(ctx context.Context, bareJID string) error {
	if err := s.usersDAO.Create(ctx, bareJID); err != nil {
		return err
	}

	s.logger.WithField("user", bareJID).Info("User registered")
	return nil
}

// CreateConsent records a consent and its user and usage point links in
// one transaction. Usage points are created on demand.
func (s *ConsentService) CreateConsent(ctx context.Context, consent *models.Consent, userIDs []string, usagePointIDs []string) (int, error) {
	var consentID int

	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		id, err := s.consentsDAO.CreateWithTx(ctx, tx, consent)
		if err != nil {
			return err
		}
		consentID = id

		for _, userID := range userIDs {
			if err := s.consentsDAO.LinkUserWithTx(ctx, tx, id, userID); err != nil {
				return err
			}
		}
		for _, upID := range usagePointIDs {
			if err := s.usagePointsDAO.CreateWithTx(ctx, tx, upID); err != nil {
				return err
			}
			if err := s.consentsDAO.LinkUsagePointWithTx(ctx, tx, id, upID, nil); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create consent: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":   consentID,
		"issuer":       consent.IssuerName,
		"users":        len(userIDs),
		"usage_points": len(usagePointIDs),
	}).Info("Consent created")

	return consentID, nil
}

// AddUsagePoint extends a consent scope with one usage point.
func (s *ConsentService) AddUsagePoint(ctx context.Context, consentID int, usagePointID string, comment *string) error {
	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		if err := s.usagePointsDAO.CreateWithTx(ctx, tx, usagePointID); err != nil {
			return err
		}
		return s.consentsDAO.LinkUsagePointWithTx(ctx, tx, consentID, usagePointID, comment)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":  consentID,
		"usage_point": usagePointID,
	}).Info("Consent scope extended")

	return nil
}

// Resolve returns the consent backing user access to a usage point at
// the given instant. When several consents qualify, the oldest one
// wins. When no scoped consent covers the instant but the user holds a
// valid open consent, the usage point is appended to that consent
// scope and the consent is returned.
//
// On refusal the returned NotAuthorizedError carries the most specific
// reason: no consent at all, consent not yet valid, or consent
// expired.
func (s *ConsentService) Resolve(ctx context.Context, userID, usagePointID string, at time.Time) (*models.Consent, error) {
	consents, err := s.consentsDAO.FindScoped(ctx, userID, usagePointID)
	if err != nil {
		return nil, err
	}

	// FindScoped orders by id, so the first covering consent is the
	// oldest one.
	for i := range consents {
		if consents[i].Covers(at) {
			return &consents[i], nil
		}
	}

	// No scoped consent covers at. A valid open consent still grants
	// access, even when the user holds lapsed restricted consents for
	// this usage point.
	consent, err := s.resolveOpen(ctx, userID, usagePointID, at)
	if err != nil || consent != nil {
		return consent, err
	}

	if len(consents) == 0 {
		return nil, &NotAuthorizedError{Reason: ReasonNoConsent, UserID: userID, UsagePointID: usagePointID}
	}

	reason := ReasonExpired
	for i := range consents {
		if at.Before(consents[i].BeginsAt) {
			reason = ReasonNotYetValid
			break
		}
	}

	return nil, &NotAuthorizedError{Reason: reason, UserID: userID, UsagePointID: usagePointID}
}

// resolveOpen appends the usage point to the user's oldest valid open
// consent, if any. Returns (nil, nil) when the user holds none.
func (s *ConsentService) resolveOpen(ctx context.Context, userID, usagePointID string, at time.Time) (*models.Consent, error) {
	open, err := s.consentsDAO.FindOpenValid(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	consent := &open[0]
	comment := fmt.Sprintf("added automatically for %s", userID)

	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		if err := s.usagePointsDAO.CreateWithTx(ctx, tx, usagePointID); err != nil {
			return err
		}
		return s.consentsDAO.LinkUsagePointWithTx(ctx, tx, consent.ID, usagePointID, &comment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":  consent.ID,
		"usage_point": usagePointID,
		"user":        userID,
	}).Info("Usage point added to open consent")

	return consent, nil
}
