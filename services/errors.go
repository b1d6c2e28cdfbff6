package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/atelier-api/models"
	"gorm.io/gorm"
)

// NotFoundError means an entity identifier did not resolve
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// InvalidStateError means an operation was attempted outside the legal
// source state for that transition. Current names the conflicting state.
type InvalidStateError struct {
	Resource string
	ID       uint
	Current  string
	Action   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d: status is %s", e.Action, e.Resource, e.ID, e.Current)
}

// ConflictError means a concurrent transition already changed the aggregate
type ConflictError struct {
	Message string
	Current string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ValidationError means the input was malformed
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ForbiddenError means the actor has no decision rights over the entity
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// PaymentDeclinedError means the processor rejected the charge. It is user-correctable
// and never retried automatically.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	if e.Reason == "" {
		return "payment declined"
	}
	return "payment declined: " + e.Reason
}

// TransientError wraps a network or processor timeout; the operation is safe to retry
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is safe to retry
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Message: message,
		Fields:  map[string]string{field: message},
	}
}

// enumValidationError converts a failed enum parse into a ValidationError for field
func enumValidationError(field string, err error) error {
	var enumErr *models.InvalidEnumError
	if errors.As(err, &enumErr) {
		return newValidationError(field, enumErr.Error())
	}
	return err
}

// structValidationError flattens validator output into a ValidationError
func structValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[toSnake(fe.Field())] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
	return &ValidationError{Message: "Invalid request data", Fields: fields}
}

func notFoundOr(err error, resource string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// IsUniqueViolation works with both PostgreSQL and SQLite error texts
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
