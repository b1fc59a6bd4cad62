package repositories

import (
	"context"

	"github.com/upb/dataset-search-api/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes fn within a transaction carried in the ctx passed
	// to fn. Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DatasetRepository handles dataset data operations
type DatasetRepository interface {
	// Create inserts a dataset. Returns ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, dataset *models.Dataset) error

	// GetByID retrieves a dataset by ID. Inside a transaction the row is
	// locked until the transaction ends.
	GetByID(ctx context.Context, id string) (*models.Dataset, error)

	// ExistingIDs returns which of ids are already stored
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)

	// Update updates the mutable fields of a dataset
	Update(ctx context.Context, dataset *models.Dataset) error

	// Delete deletes a dataset
	Delete(ctx context.Context, id string) error

	// Search returns datasets whose name, description or scope contain query,
	// case-insensitively
	Search(ctx context.Context, query string, limit int) ([]*models.Dataset, error)

	// DistinctValues aggregates the values of a whitelisted field with counts
	DistinctValues(ctx context.Context, field string) ([]models.DistinctValue, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Datasets DatasetRepository
}
