package membership

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/homeledger/memberships/internal/store"
)

// Error kinds returned by the membership services. Callers match them with errors.Is.
var (
	// ErrValidation marks malformed input. Terminal for the call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a plan or membership id that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation that needs an active membership.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks a write that lost against a concurrent one. Retryable.
	ErrConflict = errors.New("conflict")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// translateStoreError maps persistence sentinels onto service error kinds.
func translateStoreError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrStaleVersion):
		return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, what)
	default:
		return err
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs struct tag validation and folds failures into ErrValidation.
func validateStruct(v any) error {
	errValidate := validate.Struct(v)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(errValidate, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, errValidate)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}
