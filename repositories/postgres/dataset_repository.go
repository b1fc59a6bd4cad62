package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/upb/dataset-search-api/models"
	"github.com/upb/dataset-search-api/repositories"
	"go.uber.org/zap"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

const datasetColumns = `id, scope, name, campaign, detector_config, physics_process,
		generator, collision, q2, description, vo, created_at, updated_at`

// DatasetRepository implements the repositories.DatasetRepository interface
type DatasetRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *DB, logger *zap.Logger) repositories.DatasetRepository {
	return &DatasetRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new dataset
func (r *DatasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	query := `
		INSERT INTO datasets (` + datasetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		ds.ID,
		ds.Scope,
		ds.Name,
		ds.Campaign,
		ds.DetectorConfig,
		ds.PhysicsProcess,
		ds.Generator,
		ds.Collision,
		ds.Q2,
		ds.Description,
		ds.VO,
		ds.CreatedAt,
		ds.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dataset %s", repositories.ErrAlreadyExists, ds.ID)
		}
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	r.logger.Debug("dataset created", zap.String("id", ds.ID), zap.String("vo", ds.VO))
	return nil
}

// GetByID retrieves a dataset by ID
func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE id = $1
	`
	if _, ok := GetTransactionFromContext(ctx); ok {
		query += " FOR UPDATE"
	}

	executor := GetExecutor(ctx, r.db)
	ds, err := scanDataset(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: dataset %s", repositories.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return ds, nil
}

// ExistingIDs returns the subset of ids already present
func (r *DatasetRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id FROM datasets WHERE id = ANY($1) ORDER BY id`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing datasets: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dataset id: %w", err)
		}
		existing = append(existing, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset ids: %w", err)
	}

	return existing, nil
}

// Update updates the mutable fields of a dataset
func (r *DatasetRepository) Update(ctx context.Context, ds *models.Dataset) error {
	query := `
		UPDATE datasets
		SET campaign = $2, detector_config = $3, physics_process = $4, generator = $5,
			collision = $6, q2 = $7, description = $8, updated_at = $9
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		ds.ID,
		ds.Campaign,
		ds.DetectorConfig,
		ds.PhysicsProcess,
		ds.Generator,
		ds.Collision,
		ds.Q2,
		ds.Description,
		ds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}

	if err := requireAffected(result, ds.ID); err != nil {
		return err
	}

	r.logger.Debug("dataset updated", zap.String("id", ds.ID))
	return nil
}

// Delete deletes a dataset
func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM datasets WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	if err := requireAffected(result, id); err != nil {
		return err
	}

	r.logger.Debug("dataset deleted", zap.String("id", id))
	return nil
}

// Search matches query against name, description and scope
func (r *DatasetRepository) Search(ctx context.Context, query string, limit int) ([]*models.Dataset, error) {
	sqlQuery := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE name ILIKE $1 OR description ILIKE $1 OR scope ILIKE $1
		ORDER BY id
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, sqlQuery, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search datasets: %w", err)
	}
	defer rows.Close()

	datasets := []*models.Dataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	return datasets, nil
}

// DistinctValues counts datasets per value of field, most frequent first
func (r *DatasetRepository) DistinctValues(ctx context.Context, field string) ([]models.DistinctValue, error) {
	column, ok := models.DistinctColumn(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrInvalidField, field)
	}

	// column comes from a fixed whitelist
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM datasets
		WHERE %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY COUNT(*) DESC, %[1]s
	`, column)

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate datasets: %w", err)
	}
	defer rows.Close()

	values := []models.DistinctValue{}
	for rows.Next() {
		var v models.DistinctValue
		if err := rows.Scan(&v.Value, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distinct values: %w", err)
	}

	return values, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDataset(row scanner) (*models.Dataset, error) {
	ds := &models.Dataset{}
	err := row.Scan(
		&ds.ID,
		&ds.Scope,
		&ds.Name,
		&ds.Campaign,
		&ds.DetectorConfig,
		&ds.PhysicsProcess,
		&ds.Generator,
		&ds.Collision,
		&ds.Q2,
		&ds.Description,
		&ds.VO,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: dataset %s", repositories.ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE metacharacters so query matches literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
