// Package domain holds the activity and challenge aggregates and the services
// that track sessions, evaluate challenge progress and build leaderboards.
package domain

import (
	"errors"
	"fmt"

	"example.com/challengeengine/internal/validation"
)

var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an activity or challenge cannot be located.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the aggregate is not in a state that permits the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict is returned when an optimistic version check keeps failing.
	ErrConflict = errors.New("concurrent modification")
	// ErrForbidden indicates the caller does not own the aggregate.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyApplied is returned by repositories when an activity was already
	// counted towards a challenge.
	ErrAlreadyApplied = errors.New("contribution already applied")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func validateInput(input any) error {
	if err := validation.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
