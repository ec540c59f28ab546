package dao

import (
	"context"
	"fmt"

	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// CallsDAO handles database operations for the webservices call ledger.
type CallsDAO struct {
	db *database.DB
}

// NewCallsDAO creates a new CallsDAO instance.
func NewCallsDAO(db *database.DB) *CallsDAO {
	return &CallsDAO{db: db}
}

// Insert records a call intent with a null status. The composite
// foreign keys and the called_at check make the database reject any
// row not backed by a matching consent; the guarded-call wrapper
// treats that rejection as an authorization failure.
func (dao *CallsDAO) Insert(ctx context.Context, call *models.WebservicesCall) (int, error) {
	query := `
		INSERT INTO webservices_calls (
			webservice, usage_point_id, user_id,
			consent_id, consent_begins_at, consent_expires_at,
			called_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int
	err := dao.db.GetContext(ctx, &id, query,
		call.Webservice,
		call.UsagePointID,
		call.UserID,
		call.ConsentID,
		call.ConsentBeginsAt,
		call.ConsentExpiresAt,
		call.CalledAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert webservices call: %w", err)
	}

	return id, nil
}

// SetStatus moves a call row to its terminal state.
func (dao *CallsDAO) SetStatus(ctx context.Context, id int, status models.CallStatus, callErr *string) error {
	query := `UPDATE webservices_calls SET status = $2, error = $3 WHERE id = $1`

	res, err := dao.db.ExecContext(ctx, query, id, status, callErr)
	if err != nil {
		return fmt.Errorf("failed to set call %d status: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("call %d: %w", id, ErrNotFound)
	}

	return nil
}

// GetByID retrieves an audit row, mostly for tests and operations.
func (dao *CallsDAO) GetByID(ctx context.Context, id int) (*models.WebservicesCall, error) {
	query := `
		SELECT id, webservice, usage_point_id, user_id,
		       consent_id, consent_begins_at, consent_expires_at,
		       called_at, status, error
		FROM webservices_calls
		WHERE id = $1
	`

	var call models.WebservicesCall
	if err := dao.db.GetContext(ctx, &call, query, id); err != nil {
		return nil, fmt.Errorf("failed to get call %d: %w", id, err)
	}

	return &call, nil
}
