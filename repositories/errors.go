package repositories

import "errors"

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned on a primary key or unique violation
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidField is returned for a field that cannot be aggregated
	ErrInvalidField = errors.New("invalid aggregation field")
)
