package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
)

// DB holds the ledger database connection.
type DB struct {
	*sqlx.DB
	logger *logrus.Logger
}

// Initialize creates and initializes the database connection.
func Initialize(cfg *config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	logger.WithField("url", redactURL(cfg.URL)).Info("Connecting to database...")

	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to database")

	return &DB{DB: db, logger: logger}, nil
}

// NewFromDB wraps an existing connection, used by tests with sqlmock.
func NewFromDB(db *sqlx.DB, logger *logrus.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB != nil {
		db.logger.Info("Closing database connection...")
		return db.DB.Close()
	}
	return nil
}

// HealthCheck checks if the database is reachable.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Transaction represents a database transaction.
type Transaction struct {
	*sqlx.Tx
	logger *logrus.Logger
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context) (*Transaction, error) {
	tx, err := db.DB.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	db.logger.Debug("Transaction started")

	return &Transaction{Tx: tx, logger: db.logger}, nil
}

// Commit commits the transaction.
func (tx *Transaction) Commit() error {
	if err := tx.Tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx.logger.Debug("Transaction committed")
	return nil
}

// Rollback rolls back the transaction. Rolling back an already
// completed transaction is not an error.
func (tx *Transaction) Rollback() error {
	if err := tx.Tx.Rollback(); err != nil {
		if err == sql.ErrTxDone {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	tx.logger.Debug("Transaction rolled back")
	return nil
}

// WithTransaction executes fn within a transaction. The transaction is
// rolled back if fn returns an error or panics, committed otherwise.
func (db *DB) WithTransaction(ctx context.Context, fn func(*Transaction) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// redactURL strips credentials from a database URL for logging.
func redactURL(url string) string {
	at := -1
	scheme := -1
	for i := 0; i < len(url); i++ {
		if url[i] == '@' {
			at = i
		}
		if scheme < 0 && i+2 < len(url) && url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			scheme = i + 3
		}
	}
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme] + "***" + url[at:]
}
