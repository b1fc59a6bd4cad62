package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/dataset-search-api/authz"
	"github.com/upb/dataset-search-api/models"
	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/repositories"
	"go.uber.org/zap"
)

const (
	// DefaultSearchLimit applies when the caller gives no limit
	DefaultSearchLimit = 50
	// MaxSearchLimit caps the number of search results
	MaxSearchLimit = 500
	// MaxBatchSize caps the number of datasets in one create request
	MaxBatchSize = 1000
)

// Authorizer decides whether verified claims may act on a resource
type Authorizer interface {
	Authorize(claims *oidc.Claims, requiredGroup string, resource interface{}, pred authz.ResourcePredicate) error
}

// DatasetService implements the dataset catalogue operations
type DatasetService struct {
	repo       repositories.DatasetRepository
	txMgr      repositories.TransactionManager
	authorizer Authorizer
	writeGroup string
	logger     *zap.Logger
}

// NewDatasetService creates a new DatasetService. writeGroup is the group
// required, together with VO ownership, to modify a stored dataset.
func NewDatasetService(
	repo repositories.DatasetRepository,
	txMgr repositories.TransactionManager,
	authorizer Authorizer,
	writeGroup string,
	logger *zap.Logger,
) *DatasetService {
	return &DatasetService{
		repo:       repo,
		txMgr:      txMgr,
		authorizer: authorizer,
		writeGroup: writeGroup,
		logger:     logger,
	}
}

// BulkCreate stores all datasets or none. The owning VO of every dataset is
// taken from the caller's verified claims.
func (s *DatasetService) BulkCreate(ctx context.Context, claims *oidc.Claims, inputs []models.DatasetInput) ([]*models.Dataset, error) {
	if claims == nil || claims.VO == "" {
		return nil, ErrUnauthorized
	}
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(inputs) > MaxBatchSize {
		return nil, NewDomainError(ErrorTypeValidation, ErrBatchTooLarge.Message, nil).
			WithDetail("max", MaxBatchSize)
	}

	datasets := make([]*models.Dataset, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		ds := models.NewDataset(in, claims.VO)
		if _, dup := seen[ds.ID]; dup {
			return nil, NewDomainError(ErrorTypeValidation, "duplicate dataset in request", nil).
				WithDetail("id", ds.ID)
		}
		seen[ds.ID] = struct{}{}
		datasets = append(datasets, ds)
		ids = append(ids, ds.ID)
	}

	created, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) ([]*models.Dataset, error) {
		existing, err := s.repo.ExistingIDs(ctx, ids)
		if err != nil {
			return nil, WrapInternal("failed to check existing datasets", err)
		}
		if len(existing) > 0 {
			return nil, alreadyExists(existing, nil)
		}

		for _, ds := range datasets {
			if err := s.repo.Create(ctx, ds); err != nil {
				// Lost a race with a concurrent create
				if errors.Is(err, repositories.ErrAlreadyExists) {
					return nil, alreadyExists([]string{ds.ID}, err)
				}
				return nil, WrapInternal("failed to create dataset", err)
			}
		}
		return datasets, nil
	})
	if err != nil {
		return nil, s.domainError(err, "failed to create datasets")
	}

	s.logger.Info("datasets created",
		zap.Int("count", len(created)),
		zap.String("vo", claims.VO),
		zap.String("sub", claims.Subject))

	return created, nil
}

// Get returns a dataset by ID
func (s *DatasetService) Get(ctx context.Context, id string) (*models.Dataset, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.domainError(err, "failed to get dataset")
	}
	return ds, nil
}

// Update changes the mutable fields of a dataset owned by the caller's VO
func (s *DatasetService) Update(ctx context.Context, claims *oidc.Claims, id string, update models.DatasetUpdate) (*models.Dataset, error) {
	updated, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Dataset, error) {
		ds, err := s.authorizedDataset(ctx, claims, id)
		if err != nil {
			return nil, err
		}

		update.Apply(ds)
		if err := s.repo.Update(ctx, ds); err != nil {
			return nil, err
		}
		return ds, nil
	})
	if err != nil {
		return nil, s.domainError(err, "failed to update dataset")
	}

	s.logger.Info("dataset updated", zap.String("id", id), zap.String("sub", claims.Subject))
	return updated, nil
}

// Delete removes a dataset owned by the caller's VO
func (s *DatasetService) Delete(ctx context.Context, claims *oidc.Claims, id string) error {
	err := WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		if _, err := s.authorizedDataset(ctx, claims, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return s.domainError(err, "failed to delete dataset")
	}

	s.logger.Info("dataset deleted", zap.String("id", id), zap.String("sub", claims.Subject))
	return nil
}

// Search returns datasets matching query. A non-positive limit selects the
// default; larger limits are capped.
func (s *DatasetService) Search(ctx context.Context, query string, limit int) ([]*models.Dataset, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	datasets, err := s.repo.Search(ctx, query, limit)
	if err != nil {
		return nil, s.domainError(err, "failed to search datasets")
	}
	return datasets, nil
}

// Distinct returns the distinct values of an aggregatable field
func (s *DatasetService) Distinct(ctx context.Context, field string) (*models.DistinctValues, error) {
	if _, ok := models.DistinctColumn(field); !ok {
		return nil, NewDomainError(ErrorTypeValidation, ErrInvalidField.Message, nil).
			WithDetail("field", field).
			WithDetail("allowed", models.DistinctFieldNames())
	}

	buckets, err := s.repo.DistinctValues(ctx, field)
	if err != nil {
		return nil, s.domainError(err, "failed to aggregate datasets")
	}

	values := make([]string, 0, len(buckets))
	for _, b := range buckets {
		values = append(values, b.Value)
	}

	return &models.DistinctValues{
		Field:   field,
		Values:  values,
		Buckets: buckets,
	}, nil
}

// authorizedDataset loads a dataset and checks that the caller may modify it
func (s *DatasetService) authorizedDataset(ctx context.Context, claims *oidc.Claims, id string) (*models.Dataset, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorizer.Authorize(claims, s.writeGroup, ds, authz.SameVO); err != nil {
		return nil, NewDomainError(ErrorTypeForbidden, ErrForbidden.Message, err)
	}
	return ds, nil
}

// domainError converts repository and transaction errors into domain errors
func (s *DatasetService) domainError(err error, message string) error {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		if domainErr.Type == ErrorTypeInternal {
			s.logger.Error(message, zap.Error(err))
		}
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return NewDomainError(ErrorTypeNotFound, ErrDatasetNotFound.Message, err)
	case errors.Is(err, repositories.ErrInvalidField):
		return NewDomainError(ErrorTypeValidation, ErrInvalidField.Message, err)
	default:
		s.logger.Error(message, zap.Error(err))
		return WrapInternal(message, err)
	}
}

func alreadyExists(ids []string, err error) *DomainError {
	return NewDomainError(ErrorTypeConflict, fmt.Sprintf("Dataset with ID %s already exists", ids[0]), err).
		WithDetail("ids", ids)
}
