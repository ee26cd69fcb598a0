// Package dberrors declares the error taxonomy shared by the data access packages.
//
// All errors are *errors.Error values from github.com/goliatone/go-errors, so they carry a
// category, a text code and a severity, and they compose with the standard errors.Is/As.
// Use the Is* predicates rather than comparing categories directly.
package dberrors

import (
	stderrors "errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CategoryConnection    goerrors.Category = "connection"
	CategoryTransaction   goerrors.Category = "transaction"
	CategoryCacheDisabled goerrors.Category = "cache_disabled"
	CategoryConfiguration goerrors.Category = "configuration"
)

const (
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeTransactionFailed   = "TRANSACTION_FAILED"
	CodeCacheDisabled       = "CACHE_DISABLED"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeConcurrencyTimeout  = "CONCURRENCY_TIMEOUT"
	CodeInvalidCriteria     = "INVALID_CRITERIA"
	CodeInvalidConfig       = "INVALID_CONFIGURATION"
	CodeNotFound            = "NOT_FOUND"
)

// Connection reports that a connection could not be opened after all retries.
// It is critical: callers further up the stack must not retry it.
func Connection(schema, endpoint string, attempts int, cause error) *goerrors.Error {
	err := goerrors.New(
		fmt.Sprintf("cannot connect to %s (schema %s) after %d attempts", endpoint, schema, attempts),
		CategoryConnection,
	).WithSeverity(goerrors.SeverityCritical).
		WithTextCode(CodeConnectionFailed).
		WithMetadata(map[string]any{"schema": schema, "endpoint": endpoint, "attempts": attempts})
	err.Source = cause
	return err
}

// Transaction wraps the cause of a rolled back unit of work. When the rollback
// itself failed both errors stay reachable through errors.Is/As.
func Transaction(schema string, cause, rollbackErr error) *goerrors.Error {
	err := goerrors.New(fmt.Sprintf("transaction on %s rolled back", schema), CategoryTransaction).
		WithTextCode(CodeTransactionFailed).
		WithMetadata(map[string]any{"schema": schema})
	err.Source = cause
	if rollbackErr != nil {
		err.Source = stderrors.Join(cause, rollbackErr)
		err.Metadata["rollback_error"] = rollbackErr.Error()
	}
	return err
}

// CacheDisabled is returned when the cache store is used while disabled.
func CacheDisabled(op string) *goerrors.Error {
	return goerrors.New("cache store is disabled: "+op, CategoryCacheDisabled).
		WithSeverity(goerrors.SeverityWarning).
		WithTextCode(CodeCacheDisabled)
}

// ConcurrencyConflict is returned by strict exclusives when the slot is taken.
func ConcurrencyConflict(operation, subject string) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("%s already in progress for %s", operation, subject),
		goerrors.CategoryConflict,
	).WithTextCode(CodeConcurrencyConflict).
		WithMetadata(map[string]any{"operation": operation, "subject": subject})
}

// ConcurrencyTimeout is returned by loose exclusives that could not acquire the slot in time.
func ConcurrencyTimeout(operation, subject string, waited time.Duration) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("timed out after %s waiting for %s on %s", waited, operation, subject),
		goerrors.CategoryConflict,
	).WithTextCode(CodeConcurrencyTimeout).
		WithMetadata(map[string]any{"operation": operation, "subject": subject})
}

// Validation reports misuse of criteria or statements.
func Validation(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryValidation).
		WithTextCode(CodeInvalidCriteria)
}

// Configuration reports an unresolvable schema, endpoint or invalid settings.
func Configuration(format string, args ...any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf(format, args...), CategoryConfiguration).
		WithSeverity(goerrors.SeverityCritical).
		WithTextCode(CodeInvalidConfig)
}

// NotFound reports a missing (or soft deleted) entity.
func NotFound(entity string, id any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s %v not found", entity, id), goerrors.CategoryNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(map[string]any{"entity": entity, "id": id})
}

func IsConnection(err error) bool    { return goerrors.IsCategory(err, CategoryConnection) }
func IsTransaction(err error) bool   { return goerrors.IsCategory(err, CategoryTransaction) }
func IsCacheDisabled(err error) bool { return goerrors.IsCategory(err, CategoryCacheDisabled) }
func IsValidation(err error) bool    { return goerrors.IsCategory(err, goerrors.CategoryValidation) }
func IsConfiguration(err error) bool { return goerrors.IsCategory(err, CategoryConfiguration) }
func IsNotFound(err error) bool      { return goerrors.IsCategory(err, goerrors.CategoryNotFound) }

// IsConflict reports a strict-mode lock conflict.
func IsConflict(err error) bool { return hasTextCode(err, CodeConcurrencyConflict) }

// IsTimeout reports a loose-mode lock timeout.
func IsTimeout(err error) bool { return hasTextCode(err, CodeConcurrencyTimeout) }

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e.TextCode == code
	}
	return false
}
