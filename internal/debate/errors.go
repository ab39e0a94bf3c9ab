package debate

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced synchronously by the store and the manager
var (
	ErrNotFound          = errors.New("debate not found")
	ErrInvalidTransition = errors.New("invalid debate status transition")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// InvalidConfigError carries a human-readable detail for a rejected
// configuration
type InvalidConfigError struct {
	Detail string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid debate configuration: %s", e.Detail)
}

// NewInvalidConfig builds an InvalidConfigError from a format string
func NewInvalidConfig(format string, args ...interface{}) error {
	return &InvalidConfigError{Detail: fmt.Sprintf(format, args...)}
}

// IsInvalidConfig reports whether err is a configuration rejection
func IsInvalidConfig(err error) bool {
	var ice *InvalidConfigError
	return errors.As(err, &ice)
}
