package configuration

import (
	"errors"
	"fmt"
)

// ErrConfigurationNotFound is matched by every NotFoundError.
var ErrConfigurationNotFound = errors.New("configuration not found")

// NotFoundError reports a missing configuration document or entry.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("configuration %s not found", e.Name)
}

// Is reports whether target is ErrConfigurationNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrConfigurationNotFound
}
