package publisher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
	"github.com/consometers/sge-tiers-proxy/internal/metrics"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// Sender delivers one group of records to a subscriber.
type Sender interface {
	Send(ctx context.Context, userID string, data *metadata.Data) error
}

// Publisher fans parsed stream records out to the subscriptions they
// match, throttled to a configurable aggregate record rate.
type Publisher struct {
	subscriptionsDAO *dao.SubscriptionsDAO
	sender           Sender
	limiter          *rate.Limiter
	chunkSize        int
	logger           *logrus.Logger
}

// NewPublisher creates a new Publisher instance. recordsPerSec caps
// the aggregate emission rate across all subscriptions.
func NewPublisher(subscriptionsDAO *dao.SubscriptionsDAO, sender Sender, recordsPerSec float64, chunkSize int, logger *logrus.Logger) *Publisher {
	return &Publisher{
		subscriptionsDAO: subscriptionsDAO,
		sender:           sender,
		limiter:          rate.NewLimiter(rate.Limit(recordsPerSec), chunkSize),
		chunkSize:        chunkSize,
		logger:           logger,
	}
}

// Publish delivers the matching records of one ingestion run to every
// active subscription. When onlyUser is set, other subscribers are
// skipped, which is how archive replays are narrowed. Failures are per
// subscription: one bad delivery does not stop the run.
func (p *Publisher) Publish(ctx context.Context, records []metadata.MetadataRecord, onlyUser string) error {
	set, err := GroupRecords(records)
	if err != nil {
		return err
	}

	subs, err := p.subscriptionsDAO.List(ctx)
	if err != nil {
		return err
	}

	for i := range subs {
		sub := &subs[i]
		if onlyUser != "" && onlyUser != sub.UserID {
			continue
		}

		prefix := metadata.RecordName(sub.UsagePointID, sub.SeriesName)
		groups := set.WithPrefix(prefix)
		if len(groups) == 0 {
			continue
		}

		if err := p.deliver(ctx, sub, groups); err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.WithError(err).WithFields(logrus.Fields{
				"subscription_id": sub.ID,
				"user":            sub.UserID,
			}).Error("Delivery failed")
		}
	}

	return nil
}

// deliver runs the notification-check scope of one subscription: the
// pending mark re-validates the consent window in the database before
// anything leaves, and the terminal status is always committed.
func (p *Publisher) deliver(ctx context.Context, sub *models.Subscription, groups []*Group) error {
	if err := p.subscriptionsDAO.SetNotificationPending(ctx, sub.ID, time.Now().UTC()); err != nil {
		// the store vetoed the notification, consent no longer covers
		// this delivery
		return err
	}

	sent := 0
	var deliveryErr error

deliveryLoop:
	for _, group := range groups {
		meta := group.Metadata
		for start := 0; start < len(group.Records); start += p.chunkSize {
			end := start + p.chunkSize
			if end > len(group.Records) {
				end = len(group.Records)
			}
			chunk := group.Records[start:end]

			if deliveryErr = p.limiter.WaitN(ctx, len(chunk)); deliveryErr != nil {
				break deliveryLoop
			}
			data := &metadata.Data{Metadata: &meta, Records: chunk}
			if deliveryErr = p.sender.Send(ctx, sub.UserID, data); deliveryErr != nil {
				break deliveryLoop
			}
			sent += len(chunk)
		}
	}

	status := models.CallOK
	var errText *string
	if deliveryErr != nil {
		status = models.CallFailed
		msg := deliveryErr.Error()
		errText = &msg
	}
	if err := p.subscriptionsDAO.SetNotificationResult(ctx, sub.ID, status, errText); err != nil {
		return err
	}
	metrics.Deliveries.WithLabelValues(string(status)).Inc()
	metrics.DeliveredRecords.Add(float64(sent))

	if deliveryErr != nil {
		return deliveryErr
	}

	p.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"user":            sub.UserID,
		"records":         sent,
	}).Info("Records delivered")

	return nil
}
