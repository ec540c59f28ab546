package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
)

// maxOrderDuration caps upstream orders at one year, the longest the
// DSO accepts.
const maxOrderDuration = 365 * 24 * time.Hour

// SgeSubscriber is the slice of the DSO client the coordinator needs,
// narrowed so tests can substitute it.
type SgeSubscriber interface {
	GetTechnicalData(ctx context.Context, usagePointID string) (*sge.TechnicalData, error)
	Subscribe(ctx context.Context, usagePointID string, callType models.CallType, expiresAt time.Time, isLinky, issuerIsCompany bool, issuerName string) (int, error)
	Unsubscribe(ctx context.Context, usagePointID string, callID int) error
}

// RequiredCallTypes maps a client series name to the upstream orders
// that must be running for its data to flow.
func RequiredCallTypes(seriesName string) ([]models.CallType, error) {
	switch seriesName {
	case "consumption/power/active/raw":
		return []models.CallType{models.ConsumptionCdcEnable, models.ConsumptionCdcRaw}, nil
	case "consumption/energy/active/index", "consumption/power/apparent/max":
		return []models.CallType{models.ConsumptionIdx}, nil
	default:
		return nil, &BadRequestError{Message: fmt.Sprintf("unsupported series %q", seriesName)}
	}
}

// SubscriptionService coordinates client subscriptions with the
// upstream collection orders that feed them.
type SubscriptionService struct {
	db               *database.DB
	subscriptionsDAO *dao.SubscriptionsDAO
	usagePointsDAO   *dao.UsagePointsDAO
	consents         *ConsentService
	recorder         *CallRecorder
	sge              SgeSubscriber
	logger           *logrus.Logger
}

// NewSubscriptionService creates a new SubscriptionService instance.
func NewSubscriptionService(db *database.DB, subscriptionsDAO *dao.SubscriptionsDAO, usagePointsDAO *dao.UsagePointsDAO, consents *ConsentService, recorder *CallRecorder, sgeClient SgeSubscriber, logger *logrus.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:               db,
		subscriptionsDAO: subscriptionsDAO,
		usagePointsDAO:   usagePointsDAO,
		consents:         consents,
		recorder:         recorder,
		sge:              sgeClient,
		logger:           logger,
	}
}

// Subscribe registers a standing request for one series of one usage
// point and makes sure every required upstream order is running.
// Subscribing twice is idempotent. A DSO refusal because the order is
// already active upstream is absorbed.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, usagePointID, seriesName string) (int, error) {
	required, err := RequiredCallTypes(seriesName)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	consent, err := s.consents.Resolve(ctx, userID, usagePointID, now)
	if err != nil {
		return 0, err
	}

	usagePoint, err := s.ensureTechnicalData(ctx, userID, usagePointID)
	if err != nil {
		return 0, err
	}

	subID, err := s.subscriptionsDAO.Upsert(ctx, &models.Subscription{
		UserID:           userID,
		UsagePointID:     usagePointID,
		SeriesName:       seriesName,
		SubscribedAt:     now,
		ConsentID:        consent.ID,
		ConsentBeginsAt:  consent.BeginsAt,
		ConsentExpiresAt: consent.ExpiresAt,
	})
	if err != nil {
		return 0, err
	}

	for _, callType := range required {
		orderID, err := s.GetOrCallSubscription(ctx, userID, usagePoint, consent, callType)
		if err != nil {
			if sge.IsAlreadyActive(err) {
				s.logger.WithFields(logrus.Fields{
					"usage_point": usagePointID,
					"call_type":   callType,
				}).Info("Collection order already active upstream")
				continue
			}
			return 0, err
		}
		if err := s.subscriptionsDAO.LinkOrder(ctx, subID, orderID); err != nil {
			return 0, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id": subID,
		"user":            userID,
		"usage_point":     usagePointID,
		"series":          seriesName,
	}).Info("Subscription active")

	return subID, nil
}

// Unsubscribe removes the user's subscriptions for a usage point,
// optionally narrowed to one series, and returns the removed rows.
// Orders left without subscribers are collected later by GC.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, usagePointID string, seriesName *string) ([]models.Subscription, error) {
	deleted, err := s.subscriptionsDAO.Delete(ctx, userID, usagePointID, seriesName)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user":        userID,
		"usage_point": usagePointID,
		"removed":     len(deleted),
	}).Info("Subscriptions removed")

	return deleted, nil
}

// ensureTechnicalData makes sure the usage point's segment is known,
// fetching it through a guarded call on first use.
func (s *SubscriptionService) ensureTechnicalData(ctx context.Context, userID, usagePointID string) (*models.UsagePoint, error) {
	usagePoint, err := s.usagePointsDAO.Get(ctx, usagePointID)
	if err != nil {
		return nil, err
	}
	if usagePoint.Segment != nil {
		return usagePoint, nil
	}

	var td *sge.TechnicalData
	_, err = s.recorder.Do(ctx, models.WebserviceTechnicalData, userID, usagePointID, func(ctx context.Context) error {
		var callErr error
		td, callErr = s.sge.GetTechnicalData(ctx, usagePointID)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if err := s.usagePointsDAO.SetTechnicalData(ctx, usagePointID, models.Segment(td.Segment), td.ServiceLevel); err != nil {
		return nil, err
	}

	return s.usagePointsDAO.Get(ctx, usagePointID)
}

// GetOrCallSubscription returns an upstream order for (usage point,
// call type), reusing a still-valid one when it exists so that the
// DSO sees at most one order per pair.
func (s *SubscriptionService) GetOrCallSubscription(ctx context.Context, userID string, usagePoint *models.UsagePoint, consent *models.Consent, callType models.CallType) (int, error) {
	now := time.Now().UTC()

	existing, err := s.subscriptionsDAO.FindValidOrder(ctx, usagePoint.ID, callType, now)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	expiresAt := consent.ExpiresAt
	if limit := now.Add(maxOrderDuration); limit.Before(expiresAt) {
		expiresAt = limit
	}

	isLinky := usagePoint.Segment != nil && usagePoint.Segment.IsLinky()
	issuerIsCompany := false
	issuerName := consent.IssuerName
	if consent.IssuerType == models.IssuerCompany {
		issuerIsCompany = true
	}

	var callID int
	call, err := s.recorder.Do(ctx, models.WebserviceSubscribe, userID, usagePoint.ID, func(ctx context.Context) error {
		var callErr error
		callID, callErr = s.sge.Subscribe(ctx, usagePoint.ID, callType, expiresAt, isLinky, issuerIsCompany, issuerName)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	orderID, err := s.subscriptionsDAO.InsertOrder(ctx, &models.WebservicesCallsSubscription{
		WebservicesCallID: call.ID,
		ConsentExpiresAt:  consent.ExpiresAt,
		UsagePointID:      usagePoint.ID,
		CallType:          callType,
		CallID:            callID,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// ExpiredCalls returns the required order kinds of a subscription for
// which no linked upstream order is still valid at now.
func (s *SubscriptionService) ExpiredCalls(ctx context.Context, sub *models.Subscription, now time.Time) ([]models.CallType, error) {
	required, err := RequiredCallTypes(sub.SeriesName)
	if err != nil {
		return nil, err
	}

	orders, err := s.subscriptionsDAO.OrdersForSubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	valid := make(map[models.CallType]bool)
	for _, order := range orders {
		if order.ExpiresAt.After(now) {
			valid[order.CallType] = true
		}
	}

	var missing []models.CallType
	for _, callType := range required {
		if !valid[callType] {
			missing = append(missing, callType)
		}
	}

	return missing, nil
}

// RenewAll walks every subscription and re-issues the upstream orders
// that have lapsed, provided a consent still backs the pair. Calls are
// paced one second apart to stay polite with the DSO bus.
func (s *SubscriptionService) RenewAll(ctx context.Context) error {
	subs, err := s.subscriptionsDAO.List(ctx)
	if err != nil {
		return err
	}

	for i := range subs {
		sub := &subs[i]
		now := time.Now().UTC()

		missing, err := s.ExpiredCalls(ctx, sub, now)
		if err != nil {
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Error("Failed to inspect subscription")
			continue
		}
		if len(missing) == 0 {
			continue
		}

		consent, err := s.consents.Resolve(ctx, sub.UserID, sub.UsagePointID, now)
		if err != nil {
			if IsNotAuthorized(err) {
				continue
			}
			return err
		}

		// Refresh the denormalized consent window first so renewed
		// notifications validate against the current consent.
		sub.ConsentID = consent.ID
		sub.ConsentBeginsAt = consent.BeginsAt
		sub.ConsentExpiresAt = consent.ExpiresAt
		if _, err := s.subscriptionsDAO.Upsert(ctx, sub); err != nil {
			return err
		}

		usagePoint, err := s.usagePointsDAO.Get(ctx, sub.UsagePointID)
		if err != nil {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"subscription_id": sub.ID,
			"usage_point":     sub.UsagePointID,
			"missing":         missing,
		}).Info("Renewing collection orders")

		for _, callType := range missing {
			orderID, err := s.GetOrCallSubscription(ctx, sub.UserID, usagePoint, consent, callType)
			if err != nil {
				if sge.IsAlreadyActive(err) {
					continue
				}
				s.logger.WithError(err).WithFields(logrus.Fields{
					"subscription_id": sub.ID,
					"call_type":       callType,
				}).Error("Failed to renew collection order")
				continue
			}
			if err := s.subscriptionsDAO.LinkOrder(ctx, sub.ID, orderID); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return nil
}

// CollectGarbage cancels and deletes upstream orders no subscription
// references anymore. Upstream cancellation failures are logged and
// the order is kept for the next run.
func (s *SubscriptionService) CollectGarbage(ctx context.Context) error {
	orders, err := s.subscriptionsDAO.UnusedOrders(ctx)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if err := s.sge.Unsubscribe(ctx, order.UsagePointID, order.CallID); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"order_id":    order.ID,
				"usage_point": order.UsagePointID,
			}).Warn("Failed to cancel unused order upstream")
			continue
		}
		if err := s.subscriptionsDAO.DeleteOrder(ctx, order.ID); err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"order_id":    order.ID,
			"usage_point": order.UsagePointID,
			"call_type":   order.CallType,
		}).Info("Unused order removed")
	}

	return nil
}
