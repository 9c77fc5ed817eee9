package deployver

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidGitInfo = errors.New("invalid git info")
)

// Lookup errors
var (
	ErrUnknownStrategy = errors.New("unknown versioning strategy")
)

// Serialization errors
var (
	ErrInvalidJSON = errors.New("invalid version info json")
)

// ValidationError names the required field that was not supplied when
// constructing a VersionInfo.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingField, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingField
}
