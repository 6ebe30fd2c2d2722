package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed request input (coordinates, radius, missing fields).
	ErrValidation = errors.New("validation failed")
	// ErrFilterSyntax signals a malformed or ill-typed filter expression.
	ErrFilterSyntax = errors.New("filter syntax error")
	// ErrNoMatch signals a well-formed query that matched zero objects.
	ErrNoMatch = errors.New("query matched no objects")
	// ErrExecutor signals a search backend failure.
	ErrExecutor = errors.New("search execution failed")
	// ErrArtifact signals a dataset artifact write failure.
	ErrArtifact = errors.New("artifact write failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals access to another owner's private dataset.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
)

// FilterSyntaxError wraps ErrFilterSyntax with the offending clause.
type FilterSyntaxError struct {
	Clause string
	Reason string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("%s in clause %q: %s", ErrFilterSyntax.Error(), e.Clause, e.Reason)
}

func (e *FilterSyntaxError) Unwrap() error { return ErrFilterSyntax }

// NewFilterSyntax creates a filter syntax error naming the offending clause.
func NewFilterSyntax(clause, reason string) error {
	return &FilterSyntaxError{Clause: clause, Reason: reason}
}
