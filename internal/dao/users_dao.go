package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// ErrNotFound is returned by Get-style DAO methods when no row matches.
var ErrNotFound = sql.ErrNoRows

// UsersDAO handles database operations for proxy users.
type UsersDAO struct {
	db *database.DB
}

// NewUsersDAO creates a new UsersDAO instance.
func NewUsersDAO(db *database.DB) *UsersDAO {
	return &UsersDAO{db: db}
}

// Get retrieves a user by bare JID.
func (dao *UsersDAO) Get(ctx context.Context, bareJID string) (*models.User, error) {
	query := `SELECT bare_jid FROM users WHERE bare_jid = $1`

	var user models.User
	err := dao.db.GetContext(ctx, &user, query, bareJID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", bareJID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Create inserts a new user. Creating an existing user is not an
// error; registration is idempotent.
func (dao *UsersDAO) Create(ctx context.Context, bareJID string) error {
	query := `INSERT INTO users (bare_jid) VALUES ($1) ON CONFLICT (bare_jid) DO NOTHING`

	if _, err := dao.db.ExecContext(ctx, query, bareJID); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}
