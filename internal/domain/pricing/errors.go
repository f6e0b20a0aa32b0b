package pricing

import "fmt"

// ValidationError reports malformed or semantically invalid cart input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced catalog entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// UnavailableError reports an entity that exists but cannot be ordered now.
type UnavailableError struct {
	Kind string
	ID   string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %s is unavailable", e.Kind, e.ID)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
