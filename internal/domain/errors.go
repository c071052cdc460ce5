package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad batch parameters, rejected before any
	// remote call.
	ErrValidation = errors.New("invalid parameters")
	// ErrPlanning marks a pose-planning failure; it aborts the whole
	// batch before any item exists.
	ErrPlanning = errors.New("pose planning failed")
	// ErrConflict marks a regeneration or video request for an item
	// that already has an equivalent operation in flight.
	ErrConflict = errors.New("operation already in flight")
	// ErrPhotoNotReady marks a video request for an item whose photo
	// has not been generated successfully.
	ErrPhotoNotReady = errors.New("photo not ready")
	// ErrGeneration marks a synchronous generation call whose upstream
	// failed or returned unusable output.
	ErrGeneration = errors.New("generation failed")
	// ErrCredentialMissing marks a gateway call attempted without a
	// usable API credential; surfaces re-authentication to the caller.
	ErrCredentialMissing = errors.New("api credential missing")
	// ErrNotFound marks lookups of unknown items or history entries.
	ErrNotFound = errors.New("not found")
)

// WrapValidation annotates a validation failure with its reason.
func WrapValidation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// WrapPlanning annotates a planning failure with its cause.
func WrapPlanning(err error) error {
	return fmt.Errorf("%w: %v", ErrPlanning, err)
}
