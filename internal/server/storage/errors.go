package storage

import "errors"

// Common storage errors
var (
	// ErrFlagNotFound indicates that feature flag was not found in storage
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrOverrideNotFound indicates that there is no override for the flag/user pair
	ErrOverrideNotFound = errors.New("flag override not found")
)
