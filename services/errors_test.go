package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/dataset-search-api/repositories"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "dataset not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "dataset not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "dataset not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: dataset not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same error type", NewDomainError(ErrorTypeNotFound, "gone", nil), ErrDatasetNotFound, true},
		{"different error type", NewDomainError(ErrorTypeValidation, "bad", nil), ErrDatasetNotFound, false},
		{"wrapped", fmt.Errorf("get: %w", NewDomainError(ErrorTypeConflict, "taken", nil)), ErrDatasetExists, true},
		{"not a domain error", NewDomainError(ErrorTypeNotFound, "gone", nil), errors.New("regular error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_UnwrapsToRepositoryError(t *testing.T) {
	repoErr := fmt.Errorf("%w: dataset mc23:x", repositories.ErrNotFound)
	err := NewDomainError(ErrorTypeNotFound, "dataset not found", repoErr)

	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Equal(t, repoErr, errors.Unwrap(err))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeConflict, "dataset already exists", nil)

	err.WithDetail("ids", []string{"mc23:a"}).WithDetail("count", 1)

	assert.Equal(t, []string{"mc23:a"}, err.Details["ids"])
	assert.Equal(t, 1, err.Details["count"])
}

func TestErrorTypeCheckers(t *testing.T) {
	typeCheckers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeInternal:     IsInternalError,
	}

	for errType, checker := range typeCheckers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "test error", nil)
			assert.True(t, checker(err))
			assert.True(t, checker(fmt.Errorf("wrapped: %w", err)))
			assert.False(t, checker(errors.New("regular")))
			assert.False(t, checker(nil))

			for other, otherChecker := range typeCheckers {
				if other != errType {
					assert.False(t, otherChecker(err), "%s matched %s", errType, other)
				}
			}
		})
	}
}

func TestGetErrorTypeAndDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeConflict, "dataset already exists", nil).WithDetail("ids", []string{"a:b"})

	assert.Equal(t, ErrorTypeConflict, GetErrorType(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, []string{"a:b"}, GetErrorDetails(err)["ids"])

	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("regular")))
	assert.Nil(t, GetErrorDetails(errors.New("regular")))
}

func TestWrapHelpers(t *testing.T) {
	baseErr := errors.New("connection refused")

	wrapped := WrapError(ErrorTypeNotFound, "lookup failed", baseErr)
	assert.True(t, IsNotFoundError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))

	internal := WrapInternal("database operation failed", baseErr)
	assert.True(t, IsInternalError(internal))
	assert.ErrorIs(t, internal, baseErr)
}
