package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// UsagePointsDAO handles database operations for usage points.
type UsagePointsDAO struct {
	db *database.DB
}

// NewUsagePointsDAO creates a new UsagePointsDAO instance.
func NewUsagePointsDAO(db *database.DB) *UsagePointsDAO {
	return &UsagePointsDAO{db: db}
}

// Get retrieves a usage point by its 14-digit identifier.
func (dao *UsagePointsDAO) Get(ctx context.Context, id string) (*models.UsagePoint, error) {
	query := `SELECT id, segment, service_level FROM usage_points WHERE id = $1`

	var up models.UsagePoint
	err := dao.db.GetContext(ctx, &up, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("usage point %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get usage point: %w", err)
	}

	return &up, nil
}

// Create inserts a usage point, ignoring duplicates. Usage points are
// created on demand and never deleted.
func (dao *UsagePointsDAO) Create(ctx context.Context, id string) error {
	query := `INSERT INTO usage_points (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	if _, err := dao.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to create usage point: %w", err)
	}

	return nil
}

// CreateWithTx inserts a usage point inside a transaction.
func (dao *UsagePointsDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, id string) error {
	query := `INSERT INTO usage_points (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to create usage point: %w", err)
	}

	return nil
}

// SetTechnicalData records the segment and service level returned by
// the DSO technical-data operation.
func (dao *UsagePointsDAO) SetTechnicalData(ctx context.Context, id string, segment models.Segment, serviceLevel int) error {
	query := `UPDATE usage_points SET segment = $2, service_level = $3 WHERE id = $1`

	res, err := dao.db.ExecContext(ctx, query, id, segment, serviceLevel)
	if err != nil {
		return fmt.Errorf("failed to update usage point technical data: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("usage point %s: %w", id, ErrNotFound)
	}

	return nil
}
