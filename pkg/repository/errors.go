package repository

import (
	"errors"

	"github.com/systemshift/graphrepo/pkg/predicate"
)

var (
	// ErrMissingIdentity is returned when an operation needs an entity key that
	// is unset and cannot be generated.
	ErrMissingIdentity = errors.New("missing identity")

	// ErrUnsupportedExpression is returned when a predicate cannot be rendered.
	ErrUnsupportedExpression = predicate.ErrUnsupportedExpression
)

// IsMissingIdentity checks if an error is a missing identity error
func IsMissingIdentity(err error) bool {
	return errors.Is(err, ErrMissingIdentity)
}

// IsUnsupported checks if an error is an unsupported expression error
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedExpression)
}
