package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// ConsentsDAO handles database operations for consents and their scope
// and user links.
type ConsentsDAO struct {
	db *database.DB
}

// NewConsentsDAO creates a new ConsentsDAO instance.
func NewConsentsDAO(db *database.DB) *ConsentsDAO {
	return &ConsentsDAO{db: db}
}

// Create inserts a new consent and returns its id.
func (dao *ConsentsDAO) Create(ctx context.Context, consent *models.Consent) (int, error) {
	query := `
		INSERT INTO consents (issuer_name, issuer_type, is_open, begins_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int
	err := dao.db.GetContext(ctx, &id, query,
		consent.IssuerName,
		consent.IssuerType,
		consent.IsOpen,
		consent.BeginsAt,
		consent.ExpiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create consent: %w", err)
	}

	return id, nil
}

// CreateWithTx inserts a new consent inside a transaction and returns
// its id.
func (dao *ConsentsDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, consent *models.Consent) (int, error) {
	query := `
		INSERT INTO consents (issuer_name, issuer_type, is_open, begins_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int
	err := tx.GetContext(ctx, &id, query,
		consent.IssuerName,
		consent.IssuerType,
		consent.IsOpen,
		consent.BeginsAt,
		consent.ExpiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create consent: %w", err)
	}

	return id, nil
}

// GetByID retrieves a consent by id.
func (dao *ConsentsDAO) GetByID(ctx context.Context, id int) (*models.Consent, error) {
	query := `
		SELECT id, issuer_name, issuer_type, is_open, begins_at, expires_at, created_at
		FROM consents
		WHERE id = $1
	`

	var consent models.Consent
	if err := dao.db.GetContext(ctx, &consent, query, id); err != nil {
		return nil, fmt.Errorf("failed to get consent %d: %w", id, err)
	}

	return &consent, nil
}

// LinkUser adds a (consent, user) pair to the users link table.
func (dao *ConsentsDAO) LinkUser(ctx context.Context, consentID int, userID string) error {
	query := `
		INSERT INTO consents_users (consent_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (consent_id, user_id) DO NOTHING
	`

	if _, err := dao.db.ExecContext(ctx, query, consentID, userID); err != nil {
		return fmt.Errorf("failed to link consent %d to user %s: %w", consentID, userID, err)
	}

	return nil
}

// LinkUserWithTx adds a (consent, user) pair inside a transaction.
func (dao *ConsentsDAO) LinkUserWithTx(ctx context.Context, tx *database.Transaction, consentID int, userID string) error {
	query := `
		INSERT INTO consents_users (consent_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (consent_id, user_id) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, query, consentID, userID); err != nil {
		return fmt.Errorf("failed to link consent %d to user %s: %w", consentID, userID, err)
	}

	return nil
}

// LinkUsagePoint adds a (consent, usage point) scope link.
func (dao *ConsentsDAO) LinkUsagePoint(ctx context.Context, consentID int, usagePointID string, comment *string) error {
	query := `
		INSERT INTO consents_usage_points (consent_id, usage_point_id, comment)
		VALUES ($1, $2, $3)
		ON CONFLICT (consent_id, usage_point_id) DO NOTHING
	`

	if _, err := dao.db.ExecContext(ctx, query, consentID, usagePointID, comment); err != nil {
		return fmt.Errorf("failed to link consent %d to usage point %s: %w", consentID, usagePointID, err)
	}

	return nil
}

// LinkUsagePointWithTx adds a scope link inside a transaction.
func (dao *ConsentsDAO) LinkUsagePointWithTx(ctx context.Context, tx *database.Transaction, consentID int, usagePointID string, comment *string) error {
	query := `
		INSERT INTO consents_usage_points (consent_id, usage_point_id, comment)
		VALUES ($1, $2, $3)
		ON CONFLICT (consent_id, usage_point_id) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, query, consentID, usagePointID, comment); err != nil {
		return fmt.Errorf("failed to link consent %d to usage point %s: %w", consentID, usagePointID, err)
	}

	return nil
}

// FindScoped returns every consent linked to the user and scoped to
// the usage point, regardless of validity window, ordered by id so the
// resolver tie-break stays deterministic.
func (dao *ConsentsDAO) FindScoped(ctx context.Context, userID, usagePointID string) ([]models.Consent, error) {
	query := `
		SELECT c.id, c.issuer_name, c.issuer_type, c.is_open,
		       c.begins_at, c.expires_at, c.created_at
		FROM consents c
		JOIN consents_users cu ON cu.consent_id = c.id
		JOIN consents_usage_points cup ON cup.consent_id = c.id
		WHERE cu.user_id = $1 AND cup.usage_point_id = $2
		ORDER BY c.id
	`

	var consents []models.Consent
	if err := dao.db.SelectContext(ctx, &consents, query, userID, usagePointID); err != nil {
		return nil, fmt.Errorf("failed to find scoped consents: %w", err)
	}

	return consents, nil
}

// FindOpenValid returns the open consents of a user valid at the given
// instant, ordered by id.
func (dao *ConsentsDAO) FindOpenValid(ctx context.Context, userID string, at time.Time) ([]models.Consent, error) {
	query := `
		SELECT c.id, c.issuer_name, c.issuer_type, c.is_open,
		       c.begins_at, c.expires_at, c.created_at
		FROM consents c
		JOIN consents_users cu ON cu.consent_id = c.id
		WHERE cu.user_id = $1
		  AND c.is_open
		  AND c.begins_at <= $2 AND $2 < c.expires_at
		ORDER BY c.id
	`

	var consents []models.Consent
	if err := dao.db.SelectContext(ctx, &consents, query, userID, at); err != nil {
		return nil, fmt.Errorf("failed to find open consents: %w", err)
	}

	return consents, nil
}
