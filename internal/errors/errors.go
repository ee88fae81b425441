package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/stele-indexer/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryMissingParent represents an event whose parent entity does not exist
	CategoryMissingParent ErrorCategory = "missing_parent"
	// CategoryExternalCallReverted represents a contract view call that reverted
	CategoryExternalCallReverted ErrorCategory = "external_call_reverted"
	// CategoryUnresolvableDecimals represents a token whose decimals cannot be read
	CategoryUnresolvableDecimals ErrorCategory = "unresolvable_decimals"
	// CategoryUnknownEnumeration represents an enumeration code outside the known set
	CategoryUnknownEnumeration ErrorCategory = "unknown_enumeration"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryProvider represents RPC provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Aggregation errors. The engine logs these and continues with the next event.

// NewMissingParentError reports an event that references an entity not yet created
func NewMissingParentError(event, entity, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingParent,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "MISSING_PARENT",
		Message:    fmt.Sprintf("%s references missing %s %s", event, entity, id),
		Details: map[string]interface{}{
			"event":  event,
			"entity": entity,
			"id":     id,
		},
	}
}

// NewExternalCallRevertedError reports a reverted contract view call
func NewExternalCallRevertedError(call, contract string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExternalCallReverted,
		StatusCode: http.StatusBadGateway,
		Code:       "EXTERNAL_CALL_REVERTED",
		Message:    fmt.Sprintf("%s on %s reverted", call, contract),
		Cause:      cause,
		Details: map[string]interface{}{
			"call":     call,
			"contract": contract,
		},
	}
}

// NewUnresolvableDecimalsError reports a token whose decimals() call failed
func NewUnresolvableDecimalsError(token string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUnresolvableDecimals,
		StatusCode: http.StatusBadGateway,
		Code:       "UNRESOLVABLE_DECIMALS",
		Message:    fmt.Sprintf("decimals unavailable for token %s", token),
		Cause:      cause,
		Details: map[string]interface{}{
			"token": token,
		},
	}
}

// NewUnknownEnumerationError reports a code outside a known enumeration
func NewUnknownEnumerationError(enum string, value interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUnknownEnumeration,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "UNKNOWN_ENUMERATION",
		Message:    fmt.Sprintf("unknown %s value: %v", enum, value),
		Details: map[string]interface{}{
			"enumeration": enum,
			"value":       value,
		},
	}
}

// Query errors (4xx)

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewProviderError creates an RPC provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("rpc provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER":
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// CategoryOf returns the category of err, CategorySystem for uncategorized errors
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsAggregationError reports whether err is one the engine logs and skips
// rather than failing the event.
func IsAggregationError(err error) bool {
	switch CategoryOf(err) {
	case CategoryMissingParent, CategoryExternalCallReverted,
		CategoryUnresolvableDecimals, CategoryUnknownEnumeration:
		return true
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
