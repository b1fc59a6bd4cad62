package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/dataset-search-api/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap wraps an already opened pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// schema is applied at startup; every statement is idempotent
const schema = `
	CREATE TABLE IF NOT EXISTS datasets (
		id VARCHAR(511) PRIMARY KEY,
		scope VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		campaign VARCHAR(255) NOT NULL DEFAULT '',
		detector_config VARCHAR(255) NOT NULL DEFAULT '',
		physics_process VARCHAR(255) NOT NULL DEFAULT '',
		generator VARCHAR(255) NOT NULL DEFAULT '',
		collision VARCHAR(255) NOT NULL DEFAULT '',
		q2 VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		vo VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(scope, name)
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_campaign ON datasets(campaign);
	CREATE INDEX IF NOT EXISTS idx_datasets_detector_config ON datasets(detector_config);
	CREATE INDEX IF NOT EXISTS idx_datasets_physics_process ON datasets(physics_process);
	CREATE INDEX IF NOT EXISTS idx_datasets_generator ON datasets(generator);
	CREATE INDEX IF NOT EXISTS idx_datasets_collision ON datasets(collision);
	CREATE INDEX IF NOT EXISTS idx_datasets_q2 ON datasets(q2);
	CREATE INDEX IF NOT EXISTS idx_datasets_vo ON datasets(vo);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
