package dao

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// SubscriptionsDAO handles database operations for client
// subscriptions and their upstream orders.
type SubscriptionsDAO struct {
	db *database.DB
}

// NewSubscriptionsDAO creates a new SubscriptionsDAO instance.
func NewSubscriptionsDAO(db *database.DB) *SubscriptionsDAO {
	return &SubscriptionsDAO{db: db}
}

// Upsert creates a subscription or, when the (user, usage point,
// series) triple already exists, refreshes its consent reference.
// Subscribing twice is not an error.
func (dao *SubscriptionsDAO) Upsert(ctx context.Context, sub *models.Subscription) (int, error) {
	query := `
		INSERT INTO subscriptions (
			user_id, usage_point_id, series_name, subscribed_at,
			consent_id, consent_begins_at, consent_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, usage_point_id, series_name) DO UPDATE SET
			consent_id = EXCLUDED.consent_id,
			consent_begins_at = EXCLUDED.consent_begins_at,
			consent_expires_at = EXCLUDED.consent_expires_at
		RETURNING id
	`

	var id int
	err := dao.db.GetContext(ctx, &id, query,
		sub.UserID,
		sub.UsagePointID,
		sub.SeriesName,
		sub.SubscribedAt,
		sub.ConsentID,
		sub.ConsentBeginsAt,
		sub.ConsentExpiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return id, nil
}

// List returns every subscription, ordered by id.
func (dao *SubscriptionsDAO) List(ctx context.Context) ([]models.Subscription, error) {
	query := `
		SELECT id, user_id, usage_point_id, series_name, subscribed_at,
		       notified_at, status, error,
		       consent_id, consent_begins_at, consent_expires_at
		FROM subscriptions
		ORDER BY id
	`

	var subs []models.Subscription
	if err := dao.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

// ListByUser returns the subscriptions of one user, ordered by id.
func (dao *SubscriptionsDAO) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	query := `
		SELECT id, user_id, usage_point_id, series_name, subscribed_at,
		       notified_at, status, error,
		       consent_id, consent_begins_at, consent_expires_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY id
	`

	var subs []models.Subscription
	if err := dao.db.SelectContext(ctx, &subs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions of %s: %w", userID, err)
	}

	return subs, nil
}

// Delete removes the subscriptions of a user for a usage point,
// optionally restricted to one series, unlinking them from their
// upstream orders first. The deleted rows are returned so the caller
// can report what was removed.
func (dao *SubscriptionsDAO) Delete(ctx context.Context, userID, usagePointID string, seriesName *string) ([]models.Subscription, error) {
	var deleted []models.Subscription

	err := dao.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		query := `
			SELECT id, user_id, usage_point_id, series_name, subscribed_at,
			       notified_at, status, error,
			       consent_id, consent_begins_at, consent_expires_at
			FROM subscriptions
			WHERE user_id = $1 AND usage_point_id = $2
			  AND ($3::text IS NULL OR series_name = $3)
			ORDER BY id
		`
		if err := tx.SelectContext(ctx, &deleted, query, userID, usagePointID, seriesName); err != nil {
			return fmt.Errorf("failed to select subscriptions to delete: %w", err)
		}

		// subscriptions_calls rows go away with the subscription
		// (ON DELETE CASCADE); orphaned upstream orders are collected
		// separately by the coordinator.
		del := `
			DELETE FROM subscriptions
			WHERE user_id = $1 AND usage_point_id = $2
			  AND ($3::text IS NULL OR series_name = $3)
		`
		if _, err := tx.ExecContext(ctx, del, userID, usagePointID, seriesName); err != nil {
			return fmt.Errorf("failed to delete subscriptions: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// SetNotificationPending clears the status and stamps notified_at
// before a delivery goes out. The subscriptions table constraints
// re-validate the consent window here; a violation means the delivery
// is no longer authorized.
func (dao *SubscriptionsDAO) SetNotificationPending(ctx context.Context, id int, notifiedAt time.Time) error {
	query := `UPDATE subscriptions SET status = NULL, notified_at = $2 WHERE id = $1`

	res, err := dao.db.ExecContext(ctx, query, id, notifiedAt)
	if err != nil {
		return fmt.Errorf("failed to mark subscription %d pending: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}

	return nil
}

// SetNotificationResult moves a subscription to its terminal
// notification state.
func (dao *SubscriptionsDAO) SetNotificationResult(ctx context.Context, id int, status models.CallStatus, notifErr *string) error {
	query := `UPDATE subscriptions SET status = $2, error = $3 WHERE id = $1`

	if _, err := dao.db.ExecContext(ctx, query, id, status, notifErr); err != nil {
		return fmt.Errorf("failed to set subscription %d status: %w", id, err)
	}

	return nil
}

// FindValidOrder returns an upstream order for (usage point, call
// type) still valid at the given instant, or nil. Reusing it instead
// of issuing a new DSO order is the de-duplication the coordinator
// relies on.
func (dao *SubscriptionsDAO) FindValidOrder(ctx context.Context, usagePointID string, callType models.CallType, at time.Time) (*models.WebservicesCallsSubscription, error) {
	query := `
		SELECT id, webservices_call_id, consent_expires_at,
		       usage_point_id, call_type, call_id, expires_at
		FROM webservices_calls_subscriptions
		WHERE usage_point_id = $1 AND call_type = $2 AND expires_at > $3
		ORDER BY expires_at DESC
		LIMIT 1
	`

	var order models.WebservicesCallsSubscription
	err := dao.db.GetContext(ctx, &order, query, usagePointID, callType, at)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find upstream order: %w", err)
	}

	return &order, nil
}

// InsertOrder records the result of a successful upstream subscribe
// call.
func (dao *SubscriptionsDAO) InsertOrder(ctx context.Context, order *models.WebservicesCallsSubscription) (int, error) {
	query := `
		INSERT INTO webservices_calls_subscriptions (
			webservices_call_id, consent_expires_at,
			usage_point_id, call_type, call_id, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int
	err := dao.db.GetContext(ctx, &id, query,
		order.WebservicesCallID,
		order.ConsentExpiresAt,
		order.UsagePointID,
		order.CallType,
		order.CallID,
		order.ExpiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert upstream order: %w", err)
	}

	return id, nil
}

// LinkOrder attaches an upstream order to a subscription.
func (dao *SubscriptionsDAO) LinkOrder(ctx context.Context, subscriptionID, orderID int) error {
	query := `
		INSERT INTO subscriptions_calls (subscription_id, webservices_calls_subscription_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := dao.db.ExecContext(ctx, query, subscriptionID, orderID); err != nil {
		return fmt.Errorf("failed to link subscription %d to order %d: %w", subscriptionID, orderID, err)
	}

	return nil
}

// OrdersForSubscription returns the upstream orders linked to a
// subscription, ordered by id.
func (dao *SubscriptionsDAO) OrdersForSubscription(ctx context.Context, subscriptionID int) ([]models.WebservicesCallsSubscription, error) {
	query := `
		SELECT o.id, o.webservices_call_id, o.consent_expires_at,
		       o.usage_point_id, o.call_type, o.call_id, o.expires_at
		FROM webservices_calls_subscriptions o
		JOIN subscriptions_calls sc ON sc.webservices_calls_subscription_id = o.id
		WHERE sc.subscription_id = $1
		ORDER BY o.id
	`

	var orders []models.WebservicesCallsSubscription
	if err := dao.db.SelectContext(ctx, &orders, query, subscriptionID); err != nil {
		return nil, fmt.Errorf("failed to list orders of subscription %d: %w", subscriptionID, err)
	}

	return orders, nil
}

// UnusedOrders returns upstream orders with no linked subscription,
// eligible for upstream cancellation and deletion.
func (dao *SubscriptionsDAO) UnusedOrders(ctx context.Context) ([]models.WebservicesCallsSubscription, error) {
	query := `
		SELECT o.id, o.webservices_call_id, o.consent_expires_at,
		       o.usage_point_id, o.call_type, o.call_id, o.expires_at
		FROM webservices_calls_subscriptions o
		WHERE NOT EXISTS (
			SELECT 1 FROM subscriptions_calls sc
			WHERE sc.webservices_calls_subscription_id = o.id
		)
		ORDER BY o.id
	`

	var orders []models.WebservicesCallsSubscription
	if err := dao.db.SelectContext(ctx, &orders, query); err != nil {
		return nil, fmt.Errorf("failed to list unused orders: %w", err)
	}

	return orders, nil
}

// DeleteOrder removes an upstream order row. Safe only once unlinked.
func (dao *SubscriptionsDAO) DeleteOrder(ctx context.Context, orderID int) error {
	query := `DELETE FROM webservices_calls_subscriptions WHERE id = $1`

	if _, err := dao.db.ExecContext(ctx, query, orderID); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", orderID, err)
	}

	return nil
}
