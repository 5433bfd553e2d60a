package registry

import (
	"errors"
	"fmt"
)

// Common registry errors.
var (
	// ErrUnknownBackend indicates no backend owns the tool's prefix.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrDuplicatePrefix indicates two backends claim the same prefix.
	ErrDuplicatePrefix = errors.New("duplicate backend prefix")

	// ErrInvalidPrefix indicates a prefix that could never be resolved.
	ErrInvalidPrefix = errors.New("invalid backend prefix")
)

// UnknownBackendError wraps ErrUnknownBackend with the offending tool name.
// Prefix is empty when the name has no usable prefix at all.
type UnknownBackendError struct {
	Tool   string
	Prefix string
}

func (e *UnknownBackendError) Error() string {
	if e.Prefix == "" {
		return fmt.Sprintf("unknown backend: tool %q has no backend prefix", e.Tool)
	}
	return fmt.Sprintf("unknown backend %q for tool %q", e.Prefix, e.Tool)
}

func (e *UnknownBackendError) Unwrap() error {
	return ErrUnknownBackend
}

// DuplicatePrefixError wraps ErrDuplicatePrefix.
type DuplicatePrefixError struct {
	Prefix string
}

func (e *DuplicatePrefixError) Error() string {
	return fmt.Sprintf("duplicate backend prefix %q", e.Prefix)
}

func (e *DuplicatePrefixError) Unwrap() error {
	return ErrDuplicatePrefix
}

// IsUnknownBackend checks if an error is an unresolvable tool prefix.
func IsUnknownBackend(err error) bool {
	return errors.Is(err, ErrUnknownBackend)
}
