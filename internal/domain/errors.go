package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrConflict            = errors.New("concurrent modification")
	ErrVaultNotInitialized = errors.New("guild vault not initialized")
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing entity. It matches both ErrNotFound and ErrValidation.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrValidation
}

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

type InsufficientFundsError struct {
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %.2f, requested %.2f", float64(e.Available), float64(e.Requested))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariantViolation }

func Violation(invariant, format string, args ...any) error {
	return &InvariantError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
