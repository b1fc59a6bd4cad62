package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingGroup is returned when the claims lack the required group
	ErrMissingGroup = errors.New("missing required group")

	// ErrResourceDenied is returned when the resource predicate rejects access
	ErrResourceDenied = errors.New("access to resource denied")
)

// Denial is the error returned by Authorize when access is refused
type Denial struct {
	// Reason is ErrMissingGroup or ErrResourceDenied
	Reason error
	// Group is the required group, set for ErrMissingGroup
	Group string
}

func (d *Denial) Error() string {
	if d.Group != "" {
		return fmt.Sprintf("%s: %s", d.Reason, d.Group)
	}
	return d.Reason.Error()
}

func (d *Denial) Unwrap() error {
	return d.Reason
}

// IsDenial checks if an error is an authorization denial
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}
