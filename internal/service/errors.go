package service

import (
	"errors"
	"fmt"

	"github.com/Baaaki/parley/internal/repository"
)

// Error taxonomy. Everything a service returns wraps exactly one of these, so
// transports map errors with errors.Is and never look at store errors.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrAuthorization    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

var taxonomy = []error{ErrAuthentication, ErrAuthorization, ErrNotFound, ErrValidation, ErrStoreUnavailable}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify maps repository and driver errors onto the taxonomy.
// Anything unrecognised is treated as the store being unavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return err
		}
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// Kind returns the taxonomy sentinel err wraps, or nil.
func Kind(err error) error {
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
